// Package notify delivers advisor messages to an out-of-band channel.
// Delivery is best effort; callers use SafeSend so a failed send never
// affects trade state.
package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/zone_strangler/internal/models"
)

// Notifier sends text with an optional ordered group of images. When images
// are present the first one carries text as its caption.
type Notifier interface {
	Send(ctx context.Context, text string, images ...[]byte) error
}

// Renderer turns a P/L payload into a chart image.
type Renderer interface {
	Render(p PnLPayload) ([]byte, error)
}

// SafeSend sends and logs any failure at warn level.
func SafeSend(ctx context.Context, n Notifier, logger *logrus.Logger, text string, images ...[]byte) {
	if n == nil {
		return
	}
	if err := n.Send(ctx, text, images...); err != nil {
		logger.WithError(err).Warn("notification not delivered")
	}
}

// PnLEntry is one trade line of a group P/L payload.
type PnLEntry struct {
	TradeID    string            `json:"trade_id"`
	RewardType models.RewardTier `json:"reward_type"`
	PnL        float64           `json:"pnl"`
}

// PnLPayload is the per-instrument summary sent after a sweep, grouped by entry tag.
type PnLPayload struct {
	Title  string                `json:"title"`
	Groups map[string][]PnLEntry `json:"groups"`
	Notes  []string              `json:"notes,omitempty"` // appended after the total
}

// Empty reports whether the payload has no entries.
func (p PnLPayload) Empty() bool {
	for _, entries := range p.Groups {
		if len(entries) > 0 {
			return false
		}
	}
	return true
}

// Add appends an entry under tag.
func (p *PnLPayload) Add(tag string, e PnLEntry) {
	if p.Groups == nil {
		p.Groups = make(map[string][]PnLEntry)
	}
	p.Groups[tag] = append(p.Groups[tag], e)
}

// Text renders the payload as Markdown with tags in sorted order.
func (p PnLPayload) Text() string {
	tags := make([]string, 0, len(p.Groups))
	for tag := range p.Groups {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	var sb strings.Builder
	sb.WriteString("*" + p.Title + "*\n")
	total := 0.0
	for _, tag := range tags {
		sub := 0.0
		sb.WriteString("\n_" + tag + "_\n")
		for _, e := range p.Groups[tag] {
			fmt.Fprintf(&sb, "• %s: %s\n", e.RewardType, FormatRupees(e.PnL))
			sub += e.PnL
		}
		fmt.Fprintf(&sb, "  Group P/L: %s\n", FormatRupees(sub))
		total += sub
	}
	fmt.Fprintf(&sb, "\nTotal P/L: %s", FormatRupees(total))
	for _, note := range p.Notes {
		sb.WriteString("\n" + note)
	}
	return sb.String()
}

// SendPnL renders the payload when a renderer is configured and falls back
// to text otherwise. The chart is captioned with the full text. Empty
// payloads are not sent.
func SendPnL(ctx context.Context, n Notifier, r Renderer, logger *logrus.Logger, p PnLPayload) {
	if p.Empty() {
		return
	}
	if r != nil {
		img, err := r.Render(p)
		if err == nil && len(img) > 0 {
			SafeSend(ctx, n, logger, p.Text(), img)
			return
		}
		logger.WithError(err).Warn("P/L chart not rendered, sending text")
	}
	SafeSend(ctx, n, logger, p.Text())
}

// FormatRupees formats an amount with Indian digit grouping, e.g. ₹1,23,456.50.
func FormatRupees(amount float64) string {
	negative := amount < 0
	if negative {
		amount = -amount
	}
	str := fmt.Sprintf("%.2f", amount)
	parts := strings.SplitN(str, ".", 2)
	out := "₹" + groupIndian(parts[0]) + "." + parts[1]
	if negative {
		return "-" + out
	}
	return out
}

// groupIndian groups the last three digits, then pairs.
func groupIndian(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}
	result := s[n-3:]
	s = s[:n-3]
	for len(s) > 2 {
		result = s[len(s)-2:] + "," + result
		s = s[:len(s)-2]
	}
	return s + "," + result
}

// LogNotifier writes messages to the logger. It stands in when no channel
// is configured.
type LogNotifier struct {
	Logger *logrus.Logger
}

// Send logs the text and the image count.
func (l LogNotifier) Send(_ context.Context, text string, images ...[]byte) error {
	l.Logger.WithField("images", len(images)).Info(text)
	return nil
}

// MultiNotifier fans a message out to several notifiers.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier combines notifiers; nil entries are dropped.
func NewMultiNotifier(ns ...Notifier) *MultiNotifier {
	m := &MultiNotifier{}
	for _, n := range ns {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

// Send delivers to every notifier and joins the failures.
func (m *MultiNotifier) Send(ctx context.Context, text string, images ...[]byte) error {
	var errs []string
	for _, n := range m.notifiers {
		if err := n.Send(ctx, text, images...); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Message is one recorded send.
type Message struct {
	Text   string
	Images int
}

// Recorder keeps every message in memory. Tests use it as a fake channel.
type Recorder struct {
	mu   sync.Mutex
	msgs []Message
	// Err, when set, is returned from every Send after recording.
	Err error
}

// Send records the message.
func (r *Recorder) Send(_ context.Context, text string, images ...[]byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, Message{Text: text, Images: len(images)})
	return r.Err
}

// Messages returns a copy of what was sent.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.msgs...)
}

// Reset forgets recorded messages.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = nil
}

var (
	_ Notifier = LogNotifier{}
	_ Notifier = (*MultiNotifier)(nil)
	_ Notifier = (*Recorder)(nil)
	_ Notifier = (*TelegramNotifier)(nil)
)
