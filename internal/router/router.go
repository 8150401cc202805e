// Package router implements the core message routing step: canonical inbound
// message in, session context fetched, pipeline invoked, turn recorded,
// canonical outbound message published and returned.
package router

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/relaydesk/relaydesk/internal/bus"
	"github.com/relaydesk/relaydesk/internal/memory"
	"github.com/relaydesk/relaydesk/internal/pipeline"
	"github.com/relaydesk/relaydesk/internal/recall"
	"github.com/relaydesk/relaydesk/internal/transcribe"
)

const recallLimit = 3

// Router routes canonical inbound messages through the processing pipeline
// and fans replies out on the broadcast bus.
//
// Route is safe for unbounded concurrent invocation: no global lock
// serializes unrelated sessions. Concurrent calls for the same session race
// only on the bounded-window append, where last-write-wins is acceptable —
// memory is advisory context, not a ledger.
type Router struct {
	memory      *memory.Manager
	generator   pipeline.Generator
	transcriber transcribe.Transcriber
	bus         *bus.MessageBus
	recall      *recall.Store // optional
}

// New creates a Router. transcriber and recallStore may be nil when the
// corresponding capability is not configured.
func New(mem *memory.Manager, gen pipeline.Generator, tr transcribe.Transcriber, msgBus *bus.MessageBus, recallStore *recall.Store) *Router {
	return &Router{
		memory:      mem,
		generator:   gen,
		transcriber: tr,
		bus:         msgBus,
		recall:      recallStore,
	}
}

// AudioResult pairs the final outbound message with the transcription text
// so a duplex caller can echo the transcription as an intermediate event.
type AudioResult struct {
	Transcription string
	Outbound      *bus.OutboundMessage
}

// Route processes one inbound message end to end and returns the outbound
// reply. The reply is also published on the "responses" topic so decoupled
// adapters can deliver it; a handover intent goes out on "handovers" when
// the pipeline requests escalation.
func (r *Router) Route(ctx context.Context, in bus.InboundMessage) (*bus.OutboundMessage, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	sessionID := in.SessionKey()
	mem := r.memory.GetContext(ctx, in.UserID, sessionID)

	attrs := in.Attributes
	if snippets := r.recallSearch(ctx, in.UserID, in.Text); len(snippets) > 0 {
		attrs = cloneAttrs(attrs)
		attrs["recalled_memories"] = snippets
	}

	reply, err := r.generator.GenerateReply(ctx, in.Text, mem, in.Channel, attrs)
	if err != nil {
		return nil, &ProcessingError{Err: err}
	}

	out := &bus.OutboundMessage{
		Text:              reply.Text,
		UserID:            in.UserID,
		SessionID:         sessionID,
		Channel:           in.Channel,
		MessageID:         uuid.NewString(),
		ProducedAt:        time.Now(),
		HandoverRequested: reply.HandoverRequired,
	}

	turn := memory.ConversationTurn{
		MessageID:    out.MessageID,
		InboundText:  in.Text,
		OutboundText: reply.Text,
		Channel:      in.Channel,
		Timestamp:    out.ProducedAt,
		Attributes:   in.Attributes,
	}
	r.memory.AppendTurn(ctx, in.UserID, sessionID, turn)
	r.indexTurn(in.UserID, turn)

	r.bus.Publish(bus.TopicResponses, *out)
	if reply.HandoverRequired {
		r.bus.Publish(bus.TopicHandovers, bus.HandoverEvent{
			UserID:      in.UserID,
			SessionID:   sessionID,
			Channel:     in.Channel,
			Reason:      "pipeline requested handover",
			RequestedAt: out.ProducedAt,
		})
	}

	return out, nil
}

// RouteAudio transcribes an audio clip, then routes the resulting text like
// Route. Transcription failure aborts the route with a typed error.
// onTranscript, when non-nil, is invoked with the transcription before the
// reply is generated or published, so a duplex caller can echo it to the
// user as an intermediate event ahead of the final reply.
func (r *Router) RouteAudio(ctx context.Context, audio []byte, format, userID, sessionID, channel string, attrs map[string]any, onTranscript func(text string)) (*AudioResult, error) {
	if r.transcriber == nil {
		return nil, &TranscriptionError{Err: errors.New("no transcriber configured")}
	}

	languageHint, _ := attrs["language"].(string)
	transcript, err := r.transcriber.Transcribe(ctx, audio, format, languageHint)
	if err != nil {
		return nil, &TranscriptionError{Err: err}
	}
	if onTranscript != nil {
		onTranscript(transcript.Text)
	}

	out, err := r.Route(ctx, bus.InboundMessage{
		Text:       transcript.Text,
		UserID:     userID,
		SessionID:  sessionID,
		Channel:    channel,
		ReceivedAt: time.Now(),
		Attributes: attrs,
	})
	if err != nil {
		return nil, err
	}
	return &AudioResult{Transcription: transcript.Text, Outbound: out}, nil
}

// recallSearch retrieves semantically similar past snippets. Best-effort.
func (r *Router) recallSearch(ctx context.Context, userID, query string) []recall.Snippet {
	if r.recall == nil {
		return nil
	}
	snippets, err := r.recall.Search(ctx, userID, query, recallLimit)
	if err != nil {
		log.Printf("[Router] Recall search failed for %s: %v", userID, err)
		return nil
	}
	return snippets
}

// indexTurn schedules best-effort long-term indexing of a completed turn.
func (r *Router) indexTurn(userID string, turn memory.ConversationTurn) {
	if r.recall == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := r.recall.IndexTurn(ctx, userID, turn); err != nil {
			log.Printf("[Router] Recall index failed for %s: %v", userID, err)
		}
	}()
}

func cloneAttrs(attrs map[string]any) map[string]any {
	out := make(map[string]any, len(attrs)+1)
	for k, v := range attrs {
		out[k] = v
	}
	return out
}
