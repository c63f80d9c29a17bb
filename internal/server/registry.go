package server

import (
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/npezzotti/go-whiteboard/internal/types"
	"github.com/sirupsen/logrus"
)

const (
	defaultEvictionGrace = 5 * time.Minute

	AccessPrivate = "private"

	minRoomIdLen      = 3
	maxRoomIdLen      = 50
	maxDisplayNameLen = 100
	maxUserNameLen    = 50
	minOccupancy      = 1
	maxOccupancyLimit = 100
)

// RoomConfig holds the creation parameters of a room.
type RoomConfig struct {
	Id           string
	DisplayName  string
	Access       string
	AdminName    string
	MaxOccupancy *int
	Permissions  types.Permissions
}

// Validate checks the config bounds. An empty Access defaults to private.
func (c *RoomConfig) Validate() error {
	if n := utf8.RuneCountInString(c.Id); n < minRoomIdLen || n > maxRoomIdLen {
		return validationError("room id must be between %d and %d characters", minRoomIdLen, maxRoomIdLen)
	}
	if strings.TrimSpace(c.DisplayName) == "" || utf8.RuneCountInString(c.DisplayName) > maxDisplayNameLen {
		return validationError("room name must be provided and at most %d characters", maxDisplayNameLen)
	}
	if err := validateUserName(c.AdminName); err != nil {
		return validationError("admin name must be provided and at most %d characters", maxUserNameLen)
	}
	if c.Access == "" {
		c.Access = AccessPrivate
	}
	if c.Access != AccessPrivate {
		return validationError("unsupported access mode %q", c.Access)
	}
	if c.MaxOccupancy != nil && (*c.MaxOccupancy < minOccupancy || *c.MaxOccupancy > maxOccupancyLimit) {
		return validationError("max occupancy must be between %d and %d", minOccupancy, maxOccupancyLimit)
	}
	return nil
}

func validateUserName(name string) error {
	if strings.TrimSpace(name) == "" {
		return validationError("user name is required")
	}
	if utf8.RuneCountInString(name) > maxUserNameLen {
		return validationError("user name must be at most %d characters", maxUserNameLen)
	}
	return nil
}

type member struct {
	name     string
	joinedAt time.Time
}

type room struct {
	data      types.RoomData
	members   map[string]member
	createdAt time.Time

	// logLock guards history and lastActivity for writers holding only the
	// registry read lock.
	logLock      sync.Mutex
	history      *OperationLog
	lastActivity time.Time

	// dispatchLock is held while fanning out an appended entry so recipients
	// observe broadcasts in append order.
	dispatchLock sync.Mutex
}

func (rm *room) full() bool {
	return rm.data.MaxOccupancy != nil && len(rm.members) >= *rm.data.MaxOccupancy
}

func (rm *room) memberIds() []string {
	ids := make([]string, 0, len(rm.members))
	for id := range rm.members {
		ids = append(ids, id)
	}
	return ids
}

type pendingEviction struct {
	timer *time.Timer
}

// DispatchFunc delivers an appended entry to the connections that were
// members of the room when the entry was appended.
type DispatchFunc func(entry types.Entry, recipients []string)

// Registry owns every live room and the connection -> room membership index.
//
// Membership changes take mu exclusively. Log writers take mu shared plus the
// room's logLock, so membership is stable while an entry is appended and
// appends to different rooms proceed in parallel.
type Registry struct {
	log       *logrus.Logger
	mu        sync.RWMutex
	rooms     map[string]*room
	index     map[string]string
	evictions map[string]*pendingEviction
	grace     time.Duration
	now       func() time.Time
	onEvict   func(roomId string)
}

func NewRegistry(logger *logrus.Logger, grace time.Duration) *Registry {
	if grace <= 0 {
		grace = defaultEvictionGrace
	}

	return &Registry{
		log:       logger,
		rooms:     make(map[string]*room),
		index:     make(map[string]string),
		evictions: make(map[string]*pendingEviction),
		grace:     grace,
		now:       time.Now,
	}
}

// OnEvict registers a callback invoked after a room has been destroyed.
func (r *Registry) OnEvict(fn func(roomId string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onEvict = fn
}

// SeatedFunc is run while the registry lock that admitted a member is still
// held. It must not block or call back into the registry.
type SeatedFunc func(room types.RoomData, history []types.Entry)

// CreateRoom stores a new room. When adminConn is not empty the admin is
// seated in the same critical section, so the room is never observable
// without its creator.
func (r *Registry) CreateRoom(cfg RoomConfig, adminConn string) (types.RoomData, error) {
	return r.CreateRoomFunc(cfg, adminConn, nil)
}

// CreateRoomFunc is CreateRoom with onSeated run for the admin before any
// other connection can append to the room.
func (r *Registry) CreateRoomFunc(cfg RoomConfig, adminConn string, onSeated SeatedFunc) (types.RoomData, error) {
	if err := cfg.Validate(); err != nil {
		return types.RoomData{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[cfg.Id]; ok {
		return types.RoomData{}, duplicateRoomError(cfg.Id)
	}

	now := r.now()
	rm := &room{
		data: types.RoomData{
			Id:           cfg.Id,
			DisplayName:  cfg.DisplayName,
			Access:       cfg.Access,
			AdminName:    cfg.AdminName,
			MaxOccupancy: copyIntPtr(cfg.MaxOccupancy),
			Permissions:  cfg.Permissions,
		},
		members:      make(map[string]member),
		history:      NewOperationLog(),
		createdAt:    now,
		lastActivity: now,
	}
	r.rooms[cfg.Id] = rm

	if adminConn != "" {
		r.seat(rm, adminConn, cfg.AdminName)
		if onSeated != nil {
			onSeated(copyRoomData(rm.data), []types.Entry{})
		}
	} else {
		r.scheduleEviction(cfg.Id)
	}

	r.log.WithFields(logrus.Fields{"room_id": cfg.Id, "admin": cfg.AdminName}).Info("room created")
	return copyRoomData(rm.data), nil
}

// JoinRoom seats connId in roomId and returns the room and a snapshot of its
// history taken atomically with the admission.
func (r *Registry) JoinRoom(roomId, connId, name string) (types.RoomData, []types.Entry, error) {
	return r.JoinRoomFunc(roomId, connId, name, nil)
}

// JoinRoomFunc is JoinRoom with onSeated run inside the admission. Entries
// appended after the snapshot are dispatched only once onSeated has returned,
// so whatever onSeated queues to connId precedes them.
func (r *Registry) JoinRoomFunc(roomId, connId, name string, onSeated SeatedFunc) (types.RoomData, []types.Entry, error) {
	if err := validateUserName(name); err != nil {
		return types.RoomData{}, nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomId]
	if !ok {
		return types.RoomData{}, nil, notFoundError(roomId)
	}

	if _, seated := rm.members[connId]; !seated && rm.full() {
		return types.RoomData{}, nil, capacityError(roomId)
	}

	r.seat(rm, connId, name)
	data, history := copyRoomData(rm.data), rm.history.Snapshot()
	if onSeated != nil {
		onSeated(data, history)
	}
	return data, history, nil
}

// RejoinRoom re-seats a reconnecting participant. It fails with a
// NotFoundError when the room was evicted during the outage.
func (r *Registry) RejoinRoom(roomId, connId, name string) (types.RoomData, []types.Entry, error) {
	return r.JoinRoom(roomId, connId, name)
}

// seat must be called with mu held.
func (r *Registry) seat(rm *room, connId, name string) {
	roomId := rm.data.Id
	if prev, ok := r.index[connId]; ok && prev != roomId {
		r.unseat(connId)
	}

	now := r.now()
	joinedAt := now
	if m, ok := rm.members[connId]; ok {
		joinedAt = m.joinedAt
	}
	rm.members[connId] = member{name: name, joinedAt: joinedAt}
	r.index[connId] = roomId
	rm.lastActivity = now
	r.cancelEviction(roomId)

	r.log.WithFields(logrus.Fields{
		"room_id": roomId,
		"conn_id": connId,
		"members": len(rm.members),
	}).Debug("member seated")
}

// unseat removes connId from its room and must be called with mu held.
func (r *Registry) unseat(connId string) (string, bool) {
	roomId, ok := r.index[connId]
	if !ok {
		return "", false
	}
	delete(r.index, connId)

	rm, ok := r.rooms[roomId]
	if !ok {
		return roomId, true
	}

	delete(rm.members, connId)
	rm.lastActivity = r.now()
	if len(rm.members) == 0 {
		r.scheduleEviction(roomId)
	}

	return roomId, true
}

// LeaveRoom removes connId from its current room. It reports false when the
// connection was not a member of any room.
func (r *Registry) LeaveRoom(connId string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomId, ok := r.unseat(connId)
	if ok {
		r.log.WithFields(logrus.Fields{"room_id": roomId, "conn_id": connId}).Debug("member left")
	}
	return roomId, ok
}

// Authorize reports the sender's member record if connId currently maps to
// roomId in the membership index.
func (r *Registry) Authorize(connId, roomId string) (types.UserInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.index[connId] != roomId {
		return types.UserInfo{}, authorizationError(connId, roomId)
	}
	rm, ok := r.rooms[roomId]
	if !ok {
		return types.UserInfo{}, notFoundError(roomId)
	}
	m := rm.members[connId]
	return types.UserInfo{Id: connId, Name: m.name, JoinedAt: m.joinedAt}, nil
}

// Append records a drawing-class command sent by connId into roomId. The
// sender must currently be a member of roomId. dispatch, if not nil, runs
// after the registry locks are released but before any later append to the
// same room is dispatched.
func (r *Registry) Append(connId, roomId string, kind types.EntryKind, cmd types.DrawCommand, dispatch DispatchFunc) (types.Entry, error) {
	r.mu.RLock()
	if r.index[connId] != roomId {
		r.mu.RUnlock()
		return types.Entry{}, authorizationError(connId, roomId)
	}
	rm, ok := r.rooms[roomId]
	if !ok {
		r.mu.RUnlock()
		return types.Entry{}, notFoundError(roomId)
	}

	rm.logLock.Lock()
	entry := rm.history.Append(kind, cmd)
	rm.lastActivity = r.now()
	recipients := rm.memberIds()
	rm.dispatchLock.Lock()
	rm.logLock.Unlock()
	r.mu.RUnlock()

	defer rm.dispatchLock.Unlock()
	if dispatch != nil {
		dispatch(entry, recipients)
	}

	return entry, nil
}

// Clear truncates the history of roomId on behalf of connId.
func (r *Registry) Clear(connId, roomId string, dispatch DispatchFunc) error {
	r.mu.RLock()
	if r.index[connId] != roomId {
		r.mu.RUnlock()
		return authorizationError(connId, roomId)
	}
	rm, ok := r.rooms[roomId]
	if !ok {
		r.mu.RUnlock()
		return notFoundError(roomId)
	}

	rm.logLock.Lock()
	rm.history.Clear()
	now := r.now()
	rm.lastActivity = now
	recipients := rm.memberIds()
	rm.dispatchLock.Lock()
	rm.logLock.Unlock()
	r.mu.RUnlock()

	defer rm.dispatchLock.Unlock()
	if dispatch != nil {
		dispatch(types.Entry{Kind: types.KindClear, Timestamp: now.UnixMilli()}, recipients)
	}

	return nil
}

// Snapshot returns a copy of the room's history in append order.
func (r *Registry) Snapshot(roomId string) ([]types.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[roomId]
	if !ok {
		return nil, notFoundError(roomId)
	}

	rm.logLock.Lock()
	defer rm.logLock.Unlock()
	return rm.history.Snapshot(), nil
}

// Members returns the room's current members ordered by join time.
func (r *Registry) Members(roomId string) ([]types.UserInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[roomId]
	if !ok {
		return nil, false
	}

	users := make([]types.UserInfo, 0, len(rm.members))
	for id, m := range rm.members {
		users = append(users, types.UserInfo{Id: id, Name: m.name, JoinedAt: m.joinedAt})
	}
	slices.SortFunc(users, func(a, b types.UserInfo) int {
		if c := a.JoinedAt.Compare(b.JoinedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Id, b.Id)
	})

	return users, true
}

// MemberIds returns the connection ids currently seated in roomId.
func (r *Registry) MemberIds(roomId string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[roomId]
	if !ok {
		return nil
	}
	return rm.memberIds()
}

// RoomOf returns the room connId is currently a member of.
func (r *Registry) RoomOf(connId string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roomId, ok := r.index[connId]
	return roomId, ok
}

func (r *Registry) RoomInfo(roomId string) (types.RoomInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[roomId]
	if !ok {
		return types.RoomInfo{}, notFoundError(roomId)
	}

	rm.logLock.Lock()
	lastActivity := rm.lastActivity
	rm.logLock.Unlock()

	return types.RoomInfo{
		RoomData:       copyRoomData(rm.data),
		UserCount:      len(rm.members),
		CreatedAt:      rm.createdAt,
		LastActivityAt: lastActivity,
	}, nil
}

func (r *Registry) Stats() types.ServerStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := types.ServerStats{
		RoomCount:        len(r.rooms),
		TotalMemberCount: len(r.index),
	}
	for _, rm := range r.rooms {
		if len(rm.members) > 0 {
			stats.ActiveRoomCount++
		}
	}
	return stats
}

// scheduleEviction arms the deferred eviction check for roomId, replacing any
// pending one. Must be called with mu held.
func (r *Registry) scheduleEviction(roomId string) {
	r.cancelEviction(roomId)

	p := &pendingEviction{}
	p.timer = time.AfterFunc(r.grace, func() {
		r.evict(roomId, p)
	})
	r.evictions[roomId] = p

	r.log.WithFields(logrus.Fields{"room_id": roomId, "grace": r.grace}).Debug("room empty, eviction scheduled")
}

// cancelEviction must be called with mu held.
func (r *Registry) cancelEviction(roomId string) {
	if p, ok := r.evictions[roomId]; ok {
		p.timer.Stop()
		delete(r.evictions, roomId)
	}
}

// evict deletes roomId if p is still its pending eviction and the room is
// still empty.
func (r *Registry) evict(roomId string, p *pendingEviction) {
	r.mu.Lock()
	if r.evictions[roomId] != p {
		r.mu.Unlock()
		return
	}
	delete(r.evictions, roomId)

	rm, ok := r.rooms[roomId]
	if !ok || len(rm.members) > 0 {
		r.mu.Unlock()
		return
	}
	delete(r.rooms, roomId)
	onEvict := r.onEvict
	r.mu.Unlock()

	r.log.WithField("room_id", roomId).Info("cleaned up empty room")
	if onEvict != nil {
		onEvict(roomId)
	}
}

// Close stops all pending eviction timers.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, p := range r.evictions {
		p.timer.Stop()
		delete(r.evictions, id)
	}
}

func copyIntPtr(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyRoomData(d types.RoomData) types.RoomData {
	d.MaxOccupancy = copyIntPtr(d.MaxOccupancy)
	return d
}
