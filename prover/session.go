package prover

import (
	"context"
	"sync"
	"time"

	uuid "github.com/kthomas/go.uuid"
	"github.com/provideplatform/fold/common"
	"github.com/provideplatform/fold/state"
	"github.com/provideplatform/fold/verifier"
	"github.com/provideplatform/fold/witness"
	"github.com/provideplatform/fold/zkp/providers"
)

// Session owns one fold state and serializes every step applied to it
type Session struct {
	ID        uuid.UUID `json:"id"`
	Root      string    `json:"root"`
	CreatedAt time.Time `json:"created_at"`

	prover *Prover
	fold   *state.FoldState
	mutex  sync.Mutex
}

// SessionStatus is a point-in-time view of a session
type SessionStatus struct {
	ID     uuid.UUID          `json:"id"`
	Root   string             `json:"root"`
	Steps  uint64             `json:"steps"`
	Output state.PublicOutput `json:"output"`
}

// Status returns a snapshot of the session
func (s *Session) Status() *SessionStatus {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.status()
}

// status must be called with the session mutex held
func (s *Session) status() *SessionStatus {
	return &SessionStatus{
		ID:     s.ID,
		Root:   s.Root,
		Steps:  s.fold.Steps,
		Output: s.fold.Output,
	}
}

// Snapshot returns a copy of the session's fold state
func (s *Session) Snapshot() *state.FoldState {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.fold.Clone()
}

// Fold continues the session with a real membership
func (s *Session) Fold(ctx context.Context, w *witness.Witness) (*SessionStatus, error) {
	s.mutex.Lock()
	_, err := s.prover.Continue(ctx, s.fold, w, s.fold.Output)
	if err != nil {
		s.mutex.Unlock()
		return nil, err
	}
	status := s.status()
	s.mutex.Unlock()

	dispatchSessionNotification(s.ID, natsSessionNotificationStep, status)
	return status, nil
}

// Chaff applies n chaff steps to the session; either all of them are
// applied or none
func (s *Session) Chaff(ctx context.Context, n int) (*SessionStatus, error) {
	s.mutex.Lock()
	next := s.fold.Clone()
	for i := 0; i < n; i++ {
		_, err := s.prover.Chaff(ctx, next, next.Output)
		if err != nil {
			s.mutex.Unlock()
			return nil, err
		}
	}
	s.fold.Commit(next)
	status := s.status()
	s.mutex.Unlock()

	dispatchSessionNotification(s.ID, natsSessionNotificationChaff, status)
	return status, nil
}

// Verify checks the session's fold against its own root and step count
func (s *Session) Verify() (state.PublicOutput, error) {
	fs := s.Snapshot()
	return s.prover.Verify(fs, fs.Steps, s.Root)
}

// Compress produces a succinct proof of the session's fold as it stands now
func (s *Session) Compress(ctx context.Context, pk *providers.ProverKey) (*providers.CompressedProof, error) {
	return s.CompressSnapshot(ctx, s.Snapshot(), pk)
}

// CompressSnapshot produces a succinct proof of fs, a snapshot of this session
func (s *Session) CompressSnapshot(ctx context.Context, fs *state.FoldState, pk *providers.ProverKey) (*providers.CompressedProof, error) {
	cp, err := s.prover.Compress(ctx, fs, pk)
	if err != nil {
		return nil, err
	}

	dispatchSessionNotification(s.ID, natsSessionNotificationCompressed, &SessionStatus{
		ID:     s.ID,
		Root:   s.Root,
		Steps:  fs.Steps,
		Output: fs.Output,
	})
	return cp, nil
}

// VerifyCompressed checks a compressed proof of this session against the
// claimed step count
func (s *Session) VerifyCompressed(cp *providers.CompressedProof, vk *providers.VerifierKey, steps uint64) (state.PublicOutput, error) {
	out, err := verifier.New(s.prover.engine, s.prover.log).VerifyCompressed(cp, vk, steps, s.Root)
	observeVerification(verifier.KindCompressed, err)
	return out, err
}

// Registry holds the in-flight sessions; sessions run independently of
// one another
type Registry struct {
	prover   *Prover
	sessions map[string]*Session
	mutex    sync.RWMutex
}

// NewRegistry returns an empty registry whose sessions fold with p
func NewRegistry(p *Prover) *Registry {
	return &Registry{
		prover:   p,
		sessions: map[string]*Session{},
	}
}

// Prover returns the prover sessions are folded with
func (r *Registry) Prover() *Prover {
	return r.prover
}

// Start creates a session by folding its first membership
func (r *Registry) Start(ctx context.Context, root string, w *witness.Witness) (*Session, error) {
	fs, err := r.prover.Start(ctx, root, w)
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, common.Wrap(common.ErrRandomness, err, "failed to generate session id")
	}

	s := &Session{
		ID:        id,
		Root:      root,
		CreatedAt: time.Now(),
		prover:    r.prover,
		fold:      fs,
	}

	r.mutex.Lock()
	r.sessions[id.String()] = s
	r.mutex.Unlock()
	sessionsActive.Inc()

	dispatchSessionNotification(id, natsSessionNotificationStep, s.Status())
	return s, nil
}

// Find returns the session with the given id, or nil
func (r *Registry) Find(id string) *Session {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.sessions[id]
}

// Remove discards a session
func (r *Registry) Remove(id string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, ok := r.sessions[id]; ok {
		delete(r.sessions, id)
		sessionsActive.Dec()
	}
}

// Len returns the number of sessions held
func (r *Registry) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.sessions)
}
