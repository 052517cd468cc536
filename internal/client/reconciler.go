package client

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cwrk-planet/relay-service/internal/domain"
	"github.com/cwrk-planet/relay-service/internal/wire"
)

// transport is the slice of Manager the reconciler needs.
type transport interface {
	SendChat(text, tag string) error
	Connected() bool
	User() wire.User
}

// Reconciler keeps the locally displayed message sequence for the room in
// view. A send appends a provisional message immediately; the relay echoes
// the canonical message back with the same correlation tag, and the
// provisional entry is replaced in place. Every in-flight send has its own
// tag, so concurrent sends reconcile unambiguously.
type Reconciler struct {
	mu        sync.Mutex
	tr        transport
	roomID    string
	view      []domain.Message
	pending   map[string]domain.Message // tag -> provisional
	onFailure func(domain.Message, error)
}

// NewReconciler wires the reconciler to a transport. onFailure, when not nil,
// is called for every send whose provisional entry had to be retracted.
func NewReconciler(tr transport, onFailure func(domain.Message, error)) *Reconciler {
	return &Reconciler{
		tr:        tr,
		pending:   make(map[string]domain.Message),
		onFailure: onFailure,
	}
}

// SetRoom switches the room in view. The old view is discarded; the server's
// message_history for the new room repopulates it. Pending sends for the old
// room are dropped without a failure callback, their echoes will not match
// the new view anyway.
func (r *Reconciler) SetRoom(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roomID = roomID
	r.view = nil
	r.pending = make(map[string]domain.Message)
}

func (r *Reconciler) Room() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.roomID
}

// Messages is a snapshot of the displayed sequence.
func (r *Reconciler) Messages() []domain.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Message, len(r.view))
	copy(out, r.view)
	return out
}

// Send appends a provisional message and issues the wire send. No provisional
// is created when the preconditions fail; a transport failure retracts the
// provisional before the error is returned.
func (r *Reconciler) Send(text string) (domain.Message, error) {
	if !r.tr.Connected() {
		return domain.Message{}, ErrConnectionDown
	}

	r.mu.Lock()
	if r.roomID == "" {
		r.mu.Unlock()
		return domain.Message{}, ErrNotInRoom
	}
	me := r.tr.User()
	tag := "tmp-" + uuid.NewString()[:8]
	prov := domain.Message{
		ID:        tag,
		Text:      strings.TrimSpace(text),
		UserID:    me.ID,
		UserName:  me.Name,
		RoomID:    r.roomID,
		Timestamp: time.Now().UnixMilli(),
	}
	r.view = append(r.view, prov)
	r.pending[tag] = prov
	r.mu.Unlock()

	if err := r.tr.SendChat(text, tag); err != nil {
		r.fail(tag, err)
		return domain.Message{}, err
	}
	return prov, nil
}

// Apply feeds one manager event into the reconciler.
func (r *Reconciler) Apply(ev Event) {
	switch e := ev.(type) {
	case ServerEvent:
		r.applyEnvelope(e.Envelope)
	case StatusEvent:
		// A send issued just before the disconnect is failed now; there is
		// no per-message ack timeout.
		if e.State != StateConnected && e.State != StateConnecting {
			r.failAll(ErrConnectionDown)
		}
	}
}

func (r *Reconciler) applyEnvelope(env wire.Envelope) {
	switch env.Type {
	case wire.TypeChatMessage:
		var p wire.ChatBroadcastPayload
		if err := wire.Decode(env.Payload, &p); err != nil {
			return
		}
		r.reconcile(p)

	case wire.TypeMessageHistory:
		var p wire.MessageHistoryPayload
		if err := wire.Decode(env.Payload, &p); err != nil {
			return
		}
		r.mu.Lock()
		if p.RoomID == r.roomID {
			r.view = make([]domain.Message, len(p.Messages))
			copy(r.view, p.Messages)
		}
		r.mu.Unlock()

	case wire.TypeChatCleared:
		r.mu.Lock()
		r.view = nil
		r.mu.Unlock()
	}
}

func (r *Reconciler) reconcile(p wire.ChatBroadcastPayload) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.Tag != "" {
		if _, ok := r.pending[p.Tag]; ok {
			delete(r.pending, p.Tag)
			for i := range r.view {
				if r.view[i].ID == p.Tag {
					r.view[i] = p.Message
					return
				}
			}
			// Provisional entry was displaced (history reload); fall through.
		}
	}
	if p.Message.RoomID == r.roomID {
		r.view = append(r.view, p.Message)
	}
	// Messages for rooms not in view are dropped, not buffered.
}

func (r *Reconciler) fail(tag string, err error) {
	r.mu.Lock()
	prov, ok := r.pending[tag]
	if ok {
		delete(r.pending, tag)
		r.retractLocked(tag)
	}
	cb := r.onFailure
	r.mu.Unlock()

	if ok && cb != nil {
		cb(prov, err)
	}
}

func (r *Reconciler) failAll(err error) {
	r.mu.Lock()
	failed := make([]domain.Message, 0, len(r.pending))
	for tag, prov := range r.pending {
		r.retractLocked(tag)
		failed = append(failed, prov)
	}
	r.pending = make(map[string]domain.Message)
	cb := r.onFailure
	r.mu.Unlock()

	if cb != nil {
		for _, prov := range failed {
			cb(prov, err)
		}
	}
}

func (r *Reconciler) retractLocked(tag string) {
	for i := range r.view {
		if r.view[i].ID == tag {
			r.view = append(r.view[:i], r.view[i+1:]...)
			return
		}
	}
}
