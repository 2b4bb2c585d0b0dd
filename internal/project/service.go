package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"sync"

	"github.com/roach88/syncbridge/internal/ir"
	"github.com/roach88/syncbridge/internal/store"
)

// Service is the project service of one node.
//
// Thread-safety model:
//   - AddEvent and BroadcastEvent on the same project are serialised by a
//     per-project mutex inside one Service.
//   - Across processes the Stash compare-and-swap rejects stale writers,
//     which surfaces as a SEQUENCE_VIOLATION.
//   - Read paths take no lock.
type Service struct {
	stash    Stash
	network  Network
	notifier Notifier
	roles    Roles

	ids     IDGenerator
	noteIDs IDGenerator
	clock   Clock

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithIDGenerator sets the generator for project ids assigned at creation.
// Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Service) { s.ids = g }
}

// WithNotificationIDs sets the generator for notification ids.
// Default: ULIDGenerator.
func WithNotificationIDs(g IDGenerator) Option {
	return func(s *Service) { s.noteIDs = g }
}

// WithClock sets the clock used to stamp notifications.
func WithClock(c Clock) Option {
	return func(s *Service) { s.clock = c }
}

// New creates a project service over the given collaborators.
func New(stash Stash, network Network, notifier Notifier, roles Roles, opts ...Option) *Service {
	s := &Service{
		stash:    stash,
		network:  network,
		notifier: notifier,
		roles:    roles,
		ids:      UUIDv7Generator{},
		noteIDs:  ULIDGenerator{},
		clock:    SystemClock{},
		locks:    make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit is what a caller sends to create a project.
type Submit struct {
	// ID is assigned by the service when empty.
	ID          string
	Name        string
	Description string
	Leader      ir.Node
	// LeaderRoute is required when the creating node is the leader, since a
	// node has no peer entry for itself.
	LeaderRoute string
	// Members in broadcast order. The leader is prepended if absent.
	Members []ir.Node
	Users   []ir.Identity
}

func (s *Service) projectLock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// guardLeader is the single place leadership is checked. Every write path
// and Sync go through it.
func guardLeader(cred Credentials, p *ir.Project, msg string) error {
	if p.StateSyncLeader.VerifyKey != cred.Node {
		return newPermissionDenied(p.ID, msg)
	}
	return nil
}

func guardPermission(cred Credentials, p *ir.Project) error {
	if !p.HasPermission(cred.Caller) {
		return newPermissionDenied(p.ID, "User does not have permission to sync events")
	}
	return nil
}

func (s *Service) requireRole(ctx context.Context, cred Credentials, check func(Role) bool) error {
	role, err := s.roles.RoleFor(ctx, cred.Caller)
	if err != nil {
		return &ServiceError{
			Code:    ErrCodePermissionDenied,
			Message: "Unable to determine caller role",
			Err:     err,
		}
	}
	if !check(role) {
		return &ServiceError{
			Code:    ErrCodePermissionDenied,
			Message: "You do not have the role required for this operation",
			Err:     fmt.Errorf("caller %s has role %s", cred.Caller.Short(), role),
		}
	}
	return nil
}

func atLeastGuest(r Role) bool { return r >= RoleGuest }

// ValidateSeq accepts ev only if its seq_no is the single legal next value
// for p: exactly len(p.Events)+1.
func ValidateSeq(ev ir.Event, p *ir.Project) error {
	if ev.SeqNo < 1 {
		return &ServiceError{
			Code:      ErrCodeSequenceViolation,
			Message:   fmt.Sprintf("event seq_no must be at least 1, got %d", ev.SeqNo),
			ProjectID: p.ID,
		}
	}
	if ev.SeqNo <= int64(len(p.Events)) && len(p.Events) > 0 {
		return newOutOfOrder(p, ev.SeqNo)
	}
	if ev.SeqNo > p.NextSeq() {
		return newSequenceGap(p, ev.SeqNo)
	}
	return nil
}

// AppendLocal appends ev to the leader's copy of p. The leader's append
// position is the order: an event without a seq_no is stamped with it, and a
// seq_no that disagrees with it is rejected, since the store files and reads
// events by seq_no. The caller persists p.
func AppendLocal(cred Credentials, p *ir.Project, ev ir.Event) error {
	if err := guardLeader(cred, p, "Only the project leader can do this operation"); err != nil {
		return err
	}
	if ev.SeqNo == 0 {
		ev.SeqNo = p.NextSeq()
	}
	if err := ValidateSeq(ev, p); err != nil {
		return err
	}
	p.Append(ev)
	return nil
}

// CreateProject creates and persists a new project.
//
// Only data scientists may create projects. If this node leads the project
// the submit must carry the leader's route; otherwise the leader must be a
// known peer, whose route is used.
func (s *Service) CreateProject(ctx context.Context, cred Credentials, sub Submit) (*ir.Project, error) {
	if err := s.requireRole(ctx, cred, func(r Role) bool { return r == RoleDataScientist }); err != nil {
		return nil, err
	}
	if sub.Name == "" {
		return nil, newInvalidArgument("project name is required")
	}
	if sub.Leader.VerifyKey.IsZero() {
		return nil, newInvalidArgument("project leader is required")
	}

	id := sub.ID
	if id == "" {
		id = s.ids.Generate()
	}

	_, err := s.stash.GetByUID(ctx, id)
	switch {
	case err == nil:
		return nil, &ServiceError{
			Code:      ErrCodeAlreadyExists,
			Message:   fmt.Sprintf("Project %s already exists", id),
			ProjectID: id,
		}
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("create project: %w", err)
	}

	leader := sub.Leader
	if leader.VerifyKey == cred.Node {
		if sub.LeaderRoute == "" {
			return nil, newInvalidArgument(fmt.Sprintf("project %s's leader route is required on the leader", sub.Name))
		}
		if err := validateRoute(sub.LeaderRoute); err != nil {
			return nil, &ServiceError{
				Code:    ErrCodeInvalidArgument,
				Message: fmt.Sprintf("invalid leader route %q", sub.LeaderRoute),
				Err:     err,
			}
		}
		leader.Route = sub.LeaderRoute
	} else {
		peer, err := s.network.ResolvePeer(ctx, leader.VerifyKey)
		if err != nil {
			return nil, &ServiceError{
				Code: ErrCodePeerUnreachable,
				Message: fmt.Sprintf("Leader Server(id=%s) is not a peer of this Server(id=%s)",
					leader.VerifyKey.Short(), cred.NodeID),
				Peer: leader.String(),
				Err:  err,
			}
		}
		leader.Route = peer.Route
	}

	members := slices.Clone(sub.Members)
	if !slices.ContainsFunc(members, func(m ir.Node) bool { return m.VerifyKey == leader.VerifyKey }) {
		members = append([]ir.Node{leader}, members...)
	}
	for i := range members {
		if members[i].VerifyKey == leader.VerifyKey {
			members[i] = leader
		}
	}

	p := &ir.Project{
		ID:              id,
		Name:            sub.Name,
		Description:     sub.Description,
		CreatedBy:       cred.Caller,
		StateSyncLeader: leader,
		Members:         members,
		Users:           slices.Clone(sub.Users),
		Events:          []ir.Event{},
	}
	p.Reindex()

	// Must stay the last mutation before persisting.
	p.StartHash, err = StartHash(p)
	if err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}

	if err := s.stash.Set(ctx, p); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, &ServiceError{
				Code:      ErrCodeAlreadyExists,
				Message:   fmt.Sprintf("Project %s already exists", sub.Name),
				ProjectID: id,
				Err:       err,
			}
		}
		return nil, fmt.Errorf("create project: %w", err)
	}

	slog.Info("project created",
		"project", p.ID,
		"name", p.Name,
		"leader", p.StateSyncLeader.String(),
		"members", len(p.Members),
	)
	return p, nil
}

func validateRoute(route string) error {
	u, err := url.Parse(route)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("route has no host")
	}
	return nil
}

// StartHash fingerprints a project's founding state.
func StartHash(p *ir.Project) (string, error) {
	members := make([]any, len(p.Members))
	for i, m := range p.Members {
		members[i] = m.VerifyKey.String()
	}
	users := make([]any, len(p.Users))
	for i, u := range p.Users {
		users[i] = u.String()
	}
	return ir.ContentHash(ir.DomainProject, map[string]any{
		"id":          p.ID,
		"name":        p.Name,
		"description": p.Description,
		"created_by":  p.CreatedBy.String(),
		"leader":      p.StateSyncLeader.VerifyKey.String(),
		"members":     members,
		"users":       users,
	})
}

// AddEvent stores an event that originates from the project leader.
//
// The caller must be the leader identity: either the leader node acting
// locally, or the leader's broadcast session reaching a follower. Both check
// the seq_no against the append position so every copy stays gap-free. On a
// follower the leader identity is only accepted from a peer session.
func (s *Service) AddEvent(ctx context.Context, cred Credentials, ev ir.Event) error {
	if err := s.requireRole(ctx, cred, atLeastGuest); err != nil {
		return err
	}
	if err := ev.Validate(); err != nil {
		return &ServiceError{Code: ErrCodeInvalidArgument, Message: "project_event should be a valid event", Err: err}
	}

	lock := s.projectLock(ev.ProjectID)
	lock.Lock()
	defer lock.Unlock()

	p, err := s.load(ctx, ev.ProjectID)
	if err != nil {
		return err
	}

	if cred.Caller != p.StateSyncLeader.VerifyKey {
		return newPermissionDenied(p.ID, "Project Events should be passed to leader by broadcast endpoint")
	}

	loaded := len(p.Events)
	if cred.Node == p.StateSyncLeader.VerifyKey {
		if err := AppendLocal(cred, p, ev); err != nil {
			return err
		}
	} else {
		if !cred.Remote {
			return newPermissionDenied(p.ID, "Project Events reach a follower only through the leader's session")
		}
		if err := ValidateSeq(ev, p); err != nil {
			return err
		}
		p.Append(ev)
	}

	if err := s.checkForProjectRequest(ctx, cred, p, ev); err != nil {
		return err
	}
	if err := s.update(ctx, p, loaded); err != nil {
		return err
	}

	slog.Info("event added",
		"project", p.ID,
		"seq", p.Events[len(p.Events)-1].SeqNo,
		"event", ev.ID,
		"kind", string(ev.Kind),
	)
	return nil
}

// BroadcastEvent appends ev on the leader and delivers it to every other
// member, one at a time in member order.
//
// The local append is persisted before delivery starts. The first failing
// peer stops the broadcast and a *BroadcastError is returned naming the
// peers that received the event and those that did not; the leader's log is
// not rolled back and lagging followers catch up with CatchUp.
func (s *Service) BroadcastEvent(ctx context.Context, cred Credentials, ev ir.Event) error {
	if err := s.requireRole(ctx, cred, atLeastGuest); err != nil {
		return err
	}
	if err := ev.Validate(); err != nil {
		return &ServiceError{Code: ErrCodeInvalidArgument, Message: "project_event should be a valid event", Err: err}
	}

	lock := s.projectLock(ev.ProjectID)
	lock.Lock()
	defer lock.Unlock()

	p, err := s.load(ctx, ev.ProjectID)
	if err != nil {
		return err
	}

	if err := guardLeader(cred, p, "Only the leader of the project can broadcast events"); err != nil {
		return err
	}
	if err := guardPermission(cred, p); err != nil {
		return err
	}
	if err := ValidateSeq(ev, p); err != nil {
		return err
	}

	loaded := len(p.Events)
	p.Append(ev)

	if err := s.checkForProjectRequest(ctx, cred, p, ev); err != nil {
		return err
	}
	if err := s.update(ctx, p, loaded); err != nil {
		return err
	}

	// Session credentials are the leader node itself.
	followers := make([]ir.Node, 0, len(p.Members))
	for _, m := range p.Members {
		if m.VerifyKey != cred.Node {
			followers = append(followers, m)
		}
	}

	for i, m := range followers {
		if err := s.deliver(ctx, m, ev); err != nil {
			var se *ServiceError
			if !errors.As(err, &se) {
				se = &ServiceError{Code: ErrCodeRemoteSessionFailed, Message: "broadcast failed", Err: err}
			}
			se.ProjectID = p.ID
			bErr := &BroadcastError{
				ProjectID:    p.ID,
				SeqNo:        ev.SeqNo,
				Delivered:    slices.Clone(followers[:i]),
				Failed:       m,
				NotAttempted: slices.Clone(followers[i+1:]),
				Cause:        se,
			}
			slog.Error("broadcast stopped",
				"project", p.ID,
				"seq", ev.SeqNo,
				"peer", m.String(),
				"delivered", len(bErr.Delivered),
				"not_attempted", len(bErr.NotAttempted),
				"error", err,
			)
			return bErr
		}
		slog.Debug("event delivered", "project", p.ID, "seq", ev.SeqNo, "peer", m.String())
	}

	slog.Info("event broadcast",
		"project", p.ID,
		"seq", ev.SeqNo,
		"peers", len(followers),
	)
	return nil
}

// openSession resolves member and opens a session to it. missing is the
// message used when member is not a known peer.
func (s *Service) openSession(ctx context.Context, member ir.Node, missing string) (RemoteHandle, ir.Node, error) {
	peer, err := s.network.ResolvePeer(ctx, member.VerifyKey)
	if err != nil {
		return nil, ir.Node{}, &ServiceError{
			Code:    ErrCodePeerUnreachable,
			Message: missing,
			Peer:    member.String(),
			Err:     err,
		}
	}

	handle, err := s.network.OpenSession(ctx, peer)
	if err != nil {
		return nil, peer, &ServiceError{
			Code:    ErrCodeRemoteSessionFailed,
			Message: fmt.Sprintf("Failed to create remote client for peer: %s", peer.String()),
			Peer:    peer.String(),
			Err:     err,
		}
	}
	return handle, peer, nil
}

func (s *Service) deliver(ctx context.Context, member ir.Node, ev ir.Event) error {
	handle, peer, err := s.openSession(ctx, member,
		fmt.Sprintf("Leader server does not have peer %s. Please exchange routes with the peer.", member.String()))
	if err != nil {
		return err
	}
	defer handle.Close()

	if err := handle.AddEvent(ctx, ev); err != nil {
		return &ServiceError{
			Code:    ErrCodeRemoteSessionFailed,
			Message: fmt.Sprintf("Peer %s rejected event #%d", peer.String(), ev.SeqNo),
			Peer:    peer.String(),
			Err:     err,
		}
	}
	return nil
}

// Sync returns the events from index seqNo onward. Reads mirror writes: only
// the leader serves them and the caller needs project permission.
func (s *Service) Sync(ctx context.Context, cred Credentials, projectID string, seqNo int) ([]ir.Event, error) {
	if err := s.requireRole(ctx, cred, atLeastGuest); err != nil {
		return nil, err
	}
	if seqNo < 0 {
		return nil, newInvalidArgument("Input seq_no should be a non negative integer")
	}

	p, err := s.load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := guardLeader(cred, p, "Only the project leader can do this operation"); err != nil {
		return nil, err
	}
	if err := guardPermission(cred, p); err != nil {
		return nil, err
	}

	if seqNo >= len(p.Events) {
		return []ir.Event{}, nil
	}
	return slices.Clone(p.Events[seqNo:]), nil
}

// CatchUp brings a follower's copy of a project level with its leader. It
// reads the leader's log past the local copy over a peer session and adds
// each event with the session's leader credentials, so the usual follower
// seq checks and request notifications apply. It returns how many events
// were added.
func (s *Service) CatchUp(ctx context.Context, cred Credentials, projectID string) (int, error) {
	if err := s.requireRole(ctx, cred, atLeastGuest); err != nil {
		return 0, err
	}

	p, err := s.load(ctx, projectID)
	if err != nil {
		return 0, err
	}
	if p.StateSyncLeader.VerifyKey == cred.Node {
		return 0, newInvalidArgument(fmt.Sprintf("This node leads project %s and has nothing to catch up", p.ID))
	}
	if err := guardPermission(cred, p); err != nil {
		return 0, err
	}

	leader := p.StateSyncLeader
	handle, peer, err := s.openSession(ctx, leader,
		fmt.Sprintf("Project leader %s is not a peer of this server", leader.String()))
	if err != nil {
		return 0, err
	}
	defer handle.Close()

	missing, err := handle.Sync(ctx, p.ID, len(p.Events))
	if err != nil {
		var se *ServiceError
		if errors.As(err, &se) {
			se.ProjectID = p.ID
			se.Peer = peer.String()
			return 0, se
		}
		return 0, &ServiceError{
			Code:      ErrCodeRemoteSessionFailed,
			Message:   fmt.Sprintf("Leader %s did not serve sync", peer.String()),
			ProjectID: p.ID,
			Peer:      peer.String(),
			Err:       err,
		}
	}

	fromLeader := Credentials{Node: cred.Node, NodeID: cred.NodeID, Caller: leader.VerifyKey, Remote: true}
	added := 0
	for _, ev := range missing {
		err := s.AddEvent(ctx, fromLeader, ev)
		switch {
		case err == nil:
			added++
		case IsOutOfOrder(err):
			// A concurrent broadcast already delivered it.
		default:
			return added, err
		}
	}

	slog.Info("project caught up",
		"project", p.ID,
		"leader", peer.String(),
		"added", added,
		"events", len(p.Events)+added,
	)
	return added, nil
}

// GetAll returns the stored projects the caller has permission on.
func (s *Service) GetAll(ctx context.Context, cred Credentials) ([]*ir.Project, error) {
	if err := s.requireRole(ctx, cred, atLeastGuest); err != nil {
		return nil, err
	}
	projects, err := s.stash.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("get all projects: %w", err)
	}
	visible := projects[:0]
	for _, p := range projects {
		if p.HasPermission(cred.Caller) {
			visible = append(visible, p)
		}
	}
	return visible, nil
}

// GetByName returns the project with the given name.
func (s *Service) GetByName(ctx context.Context, cred Credentials, name string) (*ir.Project, error) {
	if err := s.requireRole(ctx, cred, atLeastGuest); err != nil {
		return nil, err
	}
	p, err := s.stash.GetByName(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return nil, newNotFound("", fmt.Sprintf("Project '%s' does not exist", name), err)
	}
	if err != nil {
		return nil, fmt.Errorf("get project by name: %w", err)
	}
	return p, nil
}

// GetByUID returns the project with the given id.
func (s *Service) GetByUID(ctx context.Context, cred Credentials, id string) (*ir.Project, error) {
	if err := s.requireRole(ctx, cred, atLeastGuest); err != nil {
		return nil, err
	}
	return s.load(ctx, id)
}

func (s *Service) load(ctx context.Context, id string) (*ir.Project, error) {
	p, err := s.stash.GetByUID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, newNotFound(id, fmt.Sprintf("Project %s not found", id), err)
	}
	if err != nil {
		return nil, fmt.Errorf("load project %s: %w", id, err)
	}
	return p, nil
}

func (s *Service) update(ctx context.Context, p *ir.Project, loaded int) error {
	err := s.stash.Update(ctx, p, loaded)
	if errors.Is(err, store.ErrStaleProject) {
		return &ServiceError{
			Code:      ErrCodeSequenceViolation,
			Reason:    ReasonOutOfOrder,
			Message:   "Project events are out of sync",
			ProjectID: p.ID,
			Err:       err,
		}
	}
	if err != nil {
		return fmt.Errorf("update project %s: %w", p.ID, err)
	}
	return nil
}

// checkForProjectRequest notifies this node when a request event targets it.
// A failed delivery fails the add or broadcast that triggered it.
func (s *Service) checkForProjectRequest(ctx context.Context, cred Credentials, p *ir.Project, ev ir.Event) error {
	if ev.Kind != ir.KindRequest || ev.Request == nil {
		return nil
	}
	req := ev.Request
	targeted := (req.ServerUID != "" && req.ServerUID == cred.NodeID) ||
		(!req.ServerVerifyKey.IsZero() && req.ServerVerifyKey == cred.Node)
	if !targeted {
		return nil
	}

	note := ir.Notification{
		ID:        s.noteIDs.Generate(),
		Subject:   fmt.Sprintf("A new request has been added to the project %s", p.Name),
		From:      cred.Caller,
		To:        cred.Node,
		ProjectID: p.ID,
		CreatedAt: s.clock.Now(),
	}
	if err := s.notifier.Send(ctx, note); err != nil {
		return &ServiceError{
			Code:      ErrCodeNotificationFailed,
			Message:   "Failed to send notification for the new request",
			ProjectID: p.ID,
			Err:       err,
		}
	}
	slog.Debug("request notification sent", "project", p.ID, "notification", note.ID)
	return nil
}
