package access

import (
	"context"
	"sync"
)

type stubStore struct {
	mu      sync.Mutex
	users   map[int64]User
	groups  map[int64][]Group
	members map[int64][]int64
	docs    map[int64]ResourceLocation

	userErr  error
	groupErr error
	docErr   error

	userCalls  int
	groupCalls int
	docCalls   int

	// hold, when set, blocks the next ActiveGroupsForUser call until released.
	hold    chan struct{}
	entered chan struct{}
}

func newStubStore() *stubStore {
	return &stubStore{
		users:   make(map[int64]User),
		groups:  make(map[int64][]Group),
		members: make(map[int64][]int64),
		docs:    make(map[int64]ResourceLocation),
	}
}

func (s *stubStore) addUser(id int64, role string, active bool, groups ...Group) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = User{ID: id, Role: role, IsActive: active}
	s.groups[id] = groups
	for _, g := range groups {
		s.members[g.ID] = append(s.members[g.ID], id)
	}
}

func (s *stubStore) setGroups(id int64, groups ...Group) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[id] = groups
}

func (s *stubStore) GetUser(ctx context.Context, id int64) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userCalls++
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	if s.userErr != nil {
		return User{}, s.userErr
	}
	user, ok := s.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

// holdGroups blocks the next group lookup. entered closes once the lookup is waiting.
func (s *stubStore) holdGroups() (entered <-chan struct{}, release func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hold = make(chan struct{})
	s.entered = make(chan struct{})
	return s.entered, func() { close(s.hold) }
}

func (s *stubStore) ActiveGroupsForUser(ctx context.Context, userID int64) ([]Group, error) {
	s.mu.Lock()
	hold, entered := s.hold, s.entered
	s.hold, s.entered = nil, nil
	s.mu.Unlock()
	if hold != nil {
		close(entered)
		<-hold
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.groupCalls++
	if s.groupErr != nil {
		return nil, s.groupErr
	}
	var active []Group
	for _, g := range s.groups[userID] {
		if g.IsActive {
			active = append(active, g)
		}
	}
	return active, nil
}

func (s *stubStore) GroupMemberIDs(ctx context.Context, groupID int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.groupErr != nil {
		return nil, s.groupErr
	}
	return append([]int64(nil), s.members[groupID]...), nil
}

func (s *stubStore) GetResourceLocation(ctx context.Context, documentID int64) (ResourceLocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docCalls++
	if s.docErr != nil {
		return ResourceLocation{}, s.docErr
	}
	loc, ok := s.docs[documentID]
	if !ok {
		return ResourceLocation{}, ErrNotFound
	}
	return loc, nil
}

func (s *stubStore) calls() (users, groups int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userCalls, s.groupCalls
}

func intPtr(v int) *int { return &v }

func idPtr(v int64) *int64 { return &v }

func group(id int64, perms PermissionSet, restrictions RestrictionSet) Group {
	return Group{ID: id, Name: "group", IsActive: true, Permissions: perms, Restrictions: restrictions}
}

func newTestGate(store *stubStore, policy EmptyPolicy) (*Gate, *Resolver) {
	resolver := NewResolver(store, store, nil, nil, nil)
	return NewGate(resolver, store, GateOptions{Policy: policy}), resolver
}
