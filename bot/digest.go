package bot

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const maxTelegramMessageLen = 4096

const (
	topicSales    = "Sales"
	topicWarnings = "Warnings"
)

// DigestEntry holds a message already formatted as MarkdownV2.
type DigestEntry struct {
	Message   string
	Topic     string
	Level     slog.Level
	Timestamp time.Time
}

// DigestBuffer collects admin reports and sends them in one message per
// interval. Administrator chats are refreshed before every flush.
type DigestBuffer struct {
	mu       sync.Mutex
	entries  []DigestEntry
	interval time.Duration
	bot      *TgBot
	stopCh   chan struct{}
	done     chan struct{}
	started  bool
}

func NewDigestBuffer(bot *TgBot, interval time.Duration) *DigestBuffer {
	return &DigestBuffer{
		interval: interval,
		bot:      bot,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (d *DigestBuffer) Add(msg string, topic string, level slog.Level) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = append(d.entries, DigestEntry{
		Message:   msg,
		Topic:     topic,
		Level:     level,
		Timestamp: time.Now(),
	})
}

func (d *DigestBuffer) StartTicker() {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return
	}
	d.started = true
	d.mu.Unlock()

	go func() {
		defer close(d.done)
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		refresh := time.NewTicker(adminRefreshInterval)
		defer refresh.Stop()
		for {
			select {
			case <-ticker.C:
				d.Flush()
			case <-refresh.C:
				d.bot.loadAdmins()
			case <-d.stopCh:
				d.Flush() // final flush
				return
			}
		}
	}()
}

// take empties the buffer and returns what it held.
func (d *DigestBuffer) take() []DigestEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	snapshot := d.entries
	d.entries = nil
	return snapshot
}

func (d *DigestBuffer) Flush() {
	entries := d.take()
	if len(entries) == 0 {
		return
	}
	d.bot.loadAdmins()
	for _, part := range splitMessage(formatDigest(entries), maxTelegramMessageLen) {
		d.bot.notifyAdmins(part)
	}
}

func (d *DigestBuffer) Stop() {
	d.mu.Lock()
	started := d.started
	d.mu.Unlock()
	if !started {
		return
	}
	close(d.stopCh)
	<-d.done
}

func formatDigest(entries []DigestEntry) string {
	grouped := make(map[string][]DigestEntry)
	for _, e := range entries {
		grouped[e.Topic] = append(grouped[e.Topic], e)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("*Digest* \\(%d messages\\)\n\n", len(entries)))

	for _, topic := range []string{topicSales, topicWarnings} {
		topicEntries := grouped[topic]
		if len(topicEntries) == 0 {
			continue
		}
		sb.WriteString(fmt.Sprintf("*%s* \\(%d\\):\n", Sanitize(topic), len(topicEntries)))
		for _, e := range topicEntries {
			ts := e.Timestamp.Format("15:04")
			sb.WriteString(fmt.Sprintf("  `%s` %s\n", ts, e.Message))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
