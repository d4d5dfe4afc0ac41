package channel

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
)

var (
	ErrStopNotSupported = errors.New("channel connection stop not supported")
	// ErrAuthentication is wrapped by remote authenticators when the login is rejected.
	ErrAuthentication = errors.New("remote authentication failed")
	// ErrUserNotFound is returned by Workspace.LookupUser when no account has the given name.
	ErrUserNotFound = errors.New("workspace user not found")
	// ErrNotGroup is returned by Workspace.GroupMembers for channels that are not private groups.
	ErrNotGroup = errors.New("channel is not a private group")
)

// WorkspaceHandler receives workspace events in arrival order. It is never re-entered.
type WorkspaceHandler func(ctx context.Context, event WorkspaceEvent)

// RemoteHandler receives remote events in arrival order. It is never re-entered.
type RemoteHandler func(ctx context.Context, event RemoteEvent)

type Adapter interface {
	Type() ChannelType
}

// Workspace is the team chat side of the bridge.
type Workspace interface {
	Adapter
	LookupUser(ctx context.Context, name string) (User, error)
	ListGroups(ctx context.Context) ([]Group, error)
	GroupMembers(ctx context.Context, channelID string) ([]string, error)
	PostMessage(ctx context.Context, channelID string, post Post) error
	PostMessageToUser(ctx context.Context, username string, post Post) error
	SendTyping(ctx context.Context, channelID string) error
	Connect(ctx context.Context, handler WorkspaceHandler) (Connection, error)
}

// RemoteSession is an authenticated session on the personal messaging platform.
type RemoteSession interface {
	AppState(ctx context.Context) (json.RawMessage, error)
	SendMessage(ctx context.Context, msg OutgoingMessage, threadID string) error
	SearchUsers(ctx context.Context, name string) ([]UserMatch, error)
	UserInfo(ctx context.Context, ids ...string) (map[string]Profile, error)
	FriendsList(ctx context.Context) ([]Friend, error)
	Listen(ctx context.Context, handler RemoteHandler) (Connection, error)
}

// RemoteAuthenticator establishes RemoteSessions. Rejected logins wrap ErrAuthentication.
type RemoteAuthenticator interface {
	Adapter
	Login(ctx context.Context, req LoginRequest) (RemoteSession, error)
}

type Connection interface {
	ChannelType() ChannelType
	Stop(ctx context.Context) error
	Running() bool
	Done() <-chan struct{}
}

// BaseConnection tracks the running state of a background receive loop.
type BaseConnection struct {
	channelType ChannelType
	stop        func(ctx context.Context) error
	running     atomic.Bool
	done        chan struct{}
	closed      atomic.Bool
}

func NewConnection(channelType ChannelType, stop func(ctx context.Context) error) *BaseConnection {
	conn := &BaseConnection{
		channelType: channelType,
		stop:        stop,
		done:        make(chan struct{}),
	}
	conn.running.Store(true)
	return conn
}

func (c *BaseConnection) ChannelType() ChannelType {
	return c.channelType
}

func (c *BaseConnection) Stop(ctx context.Context) error {
	if c.stop == nil {
		return ErrStopNotSupported
	}
	err := c.stop(ctx)
	if err == nil {
		c.MarkDone()
	}
	return err
}

func (c *BaseConnection) Running() bool {
	return c.running.Load()
}

// Done is closed once the receive loop has exited.
func (c *BaseConnection) Done() <-chan struct{} {
	return c.done
}

// MarkDone flags the connection as stopped. Safe to call more than once.
func (c *BaseConnection) MarkDone() {
	c.running.Store(false)
	if c.closed.CompareAndSwap(false, true) {
		close(c.done)
	}
}
