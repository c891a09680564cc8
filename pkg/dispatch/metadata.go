package dispatch

import (
	"context"
	"time"

	"lunabot/pkg/lang"
	"lunabot/pkg/logger"
	"lunabot/pkg/message"
	"lunabot/pkg/transport"
)

const metadataAttempts = 3

// Doubled after each failed attempt; a var so tests can shrink it.
var metadataInitialDelay = 1000 * time.Millisecond

// safelyGetGroupMetadata fetches group metadata with retries: three
// attempts, starting at one second and doubling. On exhaustion it degrades
// to a placeholder instead of failing the caller.
func safelyGetGroupMetadata(ctx context.Context, tr transport.Transport, ts *lang.Store, groupID string) *transport.GroupMetadata {
	delay := metadataInitialDelay
	var lastErr error
	for attempt := 1; attempt <= metadataAttempts; attempt++ {
		meta, err := tr.GetGroupMetadata(ctx, groupID)
		if err == nil && meta != nil {
			return meta
		}
		lastErr = err
		if attempt < metadataAttempts {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				attempt = metadataAttempts
			}
			delay *= 2
		}
	}
	logger.WarnCF("dispatch", "Group metadata unavailable, using placeholder", map[string]interface{}{
		logger.FieldGroup: groupID,
		logger.FieldError: errString(lastErr),
	})
	return &transport.GroupMetadata{
		Subject:      ts.Get("classifier.unknownGroup"),
		Participants: []transport.Participant{},
	}
}

func errString(err error) string {
	if err == nil {
		return "empty metadata"
	}
	return err.Error()
}

// metadataLookup adapts the transport to the classifier's lookup interface,
// adding the group retry policy.
type metadataLookup struct {
	ctx context.Context
	tr  transport.Transport
	ts  *lang.Store
}

var _ message.MetadataLookup = (*metadataLookup)(nil)

func (m *metadataLookup) GroupSubject(chatID string) (string, error) {
	meta := safelyGetGroupMetadata(m.ctx, m.tr, m.ts, chatID)
	return meta.Subject, nil
}

func (m *metadataLookup) ChannelSubject(chatID string) (string, error) {
	meta, err := m.tr.GetChannelMetadata(m.ctx, chatID)
	if err != nil || meta == nil {
		return "", err
	}
	return meta.Subject, nil
}

func (m *metadataLookup) ContactName(jid string) (string, error) {
	return m.tr.ContactName(m.ctx, jid)
}
