package websocket

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sync"

	"overlay-builder/core"
	"overlay-builder/handlers/auth"
	"overlay-builder/scene"

	"github.com/sirupsen/logrus"
	"github.com/zishang520/engine.io/v2/types"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

// SceneChangeEvent is emitted to a project room after every effective edit.
const SceneChangeEvent = "scene-change"

type ackInvoker func(err error, payload map[string]any)

// Hub is the socket.io side of collaboration. Each project is a room;
// clients share cursors through broadcasts and receive scene changes made
// by the HTTP surface. Sockets authenticate with a JWT in the handshake
// auth payload or the token query parameter, and may only join rooms of
// projects they own.
type Hub struct {
	srv      *socketio.Server
	registry core.RoomRegistry
	projects core.ProjectStore

	mu    sync.RWMutex
	rooms map[string]int
}

// NewHub creates the socket.io server. registry may be nil; a nil projects
// store skips the ownership check on join.
func NewHub(registry core.RoomRegistry, projects core.ProjectStore) *Hub {
	opts := socketio.DefaultServerOptions()
	opts.SetMaxHttpBufferSize(5000000)
	opts.SetPath("/socket.io")
	opts.SetAllowEIO3(true)
	localhostOrigin := regexp.MustCompile(`^https?://(localhost|127\.0\.0\.1|\[::1\])(:\d+)?$`)
	opts.SetCors(&types.Cors{
		Origin:      []any{localhostOrigin},
		Credentials: true,
	})

	h := &Hub{
		srv:      socketio.NewServer(nil, opts),
		registry: registry,
		projects: projects,
		rooms:    make(map[string]int),
	}
	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	h.srv.On("connection", func(clients ...any) {
		if socket, ok := clients[0].(*socketio.Socket); ok {
			h.connect(socket)
		}
	})
	return h
}

// Server returns the underlying socket.io server for mounting.
func (h *Hub) Server() *socketio.Server {
	return h.srv
}

// Close shuts the socket.io server down.
func (h *Hub) Close() {
	h.srv.Close(nil)
}

// ActiveRooms returns the number of connected clients per room.
func (h *Hub) ActiveRooms() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rooms := make(map[string]int, len(h.rooms))
	for k, v := range h.rooms {
		rooms[k] = v
	}
	return rooms
}

func (h *Hub) setRoomSize(roomID string, n int) {
	h.mu.Lock()
	if n <= 0 {
		delete(h.rooms, roomID)
	} else {
		h.rooms[roomID] = n
	}
	h.mu.Unlock()

	if n > 0 && h.registry != nil {
		if err := h.registry.TouchRoom(context.Background(), roomID); err != nil {
			logrus.WithError(err).WithField("room_id", roomID).Warn("Failed to record room activity")
		}
	}
}

// SceneChanged emits the changes to everyone in the project's room.
func (h *Hub) SceneChanged(projectID string, changes []scene.Change) {
	payload := map[string]any{
		"projectId": projectID,
		"changes":   changes,
	}
	if err := h.srv.To(socketio.Room(projectID)).Emit(SceneChangeEvent, payload); err != nil {
		logrus.WithError(err).WithField("project_id", projectID).Warn("Failed to emit scene change")
		return
	}
	logrus.WithFields(logrus.Fields{"project_id": projectID, "changes": len(changes)}).Debug("Scene change emitted")
}

// tokenFrom reads the JWT from the handshake auth payload, falling back to
// the token query parameter.
func tokenFrom(hs *socketio.Handshake) string {
	if hs == nil {
		return ""
	}
	if payload, ok := any(hs.Auth).(map[string]any); ok {
		if token, ok := payload["token"].(string); ok && token != "" {
			return token
		}
	}
	if values := hs.Query["token"]; len(values) > 0 {
		return values[0]
	}
	return ""
}

// authorizeRoom checks that userID owns the project the room is named after.
func (h *Hub) authorizeRoom(ctx context.Context, userID, roomID string) error {
	if h.projects == nil {
		return nil
	}
	if _, err := h.projects.Get(ctx, userID, roomID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return fmt.Errorf("room %s not found", roomID)
		}
		return fmt.Errorf("check room access: %w", err)
	}
	return nil
}

func joined(socket *socketio.Socket, room socketio.Room) bool {
	for _, r := range socket.Rooms().Keys() {
		if r == room {
			return true
		}
	}
	return false
}

func (h *Hub) connect(socket *socketio.Socket) {
	me := socket.Id()
	myRoom := socketio.Room(me)

	claims, err := auth.ParseJWT(tokenFrom(socket.Handshake()))
	if err != nil {
		logrus.WithError(err).WithField("socket_id", me).Warn("Socket rejected")
		_ = socket.Emit("unauthorized", errorPayload(err))
		socket.Disconnect(true)
		return
	}
	userID := claims.Subject
	_ = h.srv.To(myRoom).Emit("init-room")
	logrus.WithField("socket_id", me).Debug("Socket connected")

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	socket.On("join-room", func(datas ...any) {
		ack, args := extractAck(datas)
		roomID := ""
		if len(args) > 0 {
			roomID, _ = args[0].(string)
		}
		if roomID == "" {
			err := fmt.Errorf("room id is required")
			respondWithAck(socket, ack, "join-room-ack", errorPayload(err), err)
			return
		}

		if err := h.authorizeRoom(context.Background(), userID, roomID); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{"socket_id": me, "user_id": userID, "room_id": roomID}).Warn("Room join denied")
			respondWithAck(socket, ack, "join-room-ack", errorPayload(err), err)
			return
		}

		room := socketio.Room(roomID)
		socket.Join(room)
		logrus.WithFields(logrus.Fields{"socket_id": me, "user_id": userID, "room_id": roomID}).Debug("Socket joined room")

		h.srv.In(room).FetchSockets()(func(users []*socketio.RemoteSocket, fetchErr error) {
			if fetchErr != nil {
				respondWithAck(socket, ack, "join-room-ack", errorPayload(fetchErr), fetchErr)
				return
			}
			h.setRoomSize(roomID, len(users))

			if len(users) <= 1 {
				_ = h.srv.To(myRoom).Emit("first-in-room")
			} else {
				_ = socket.Broadcast().To(room).Emit("new-user", me)
			}

			ids := make([]socketio.SocketId, 0, len(users))
			for _, user := range users {
				ids = append(ids, user.Id())
			}
			_ = h.srv.In(room).Emit("room-user-change", ids)

			respondWithAck(socket, ack, "join-room-ack", map[string]any{
				"status":     "ok",
				"user_count": len(users),
			}, nil)
		})
	})

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	socket.On("server-broadcast", func(datas ...any) {
		handleBroadcast(socket, datas, false)
	})

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	socket.On("server-volatile-broadcast", func(datas ...any) {
		handleBroadcast(socket, datas, true)
	})

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	socket.On("disconnecting", func(datas ...any) {
		for _, currentRoom := range socket.Rooms().Keys() {
			if currentRoom == myRoom {
				continue
			}
			roomID := string(currentRoom)
			h.srv.In(currentRoom).FetchSockets()(func(users []*socketio.RemoteSocket, _ error) {
				others := make([]socketio.SocketId, 0, len(users))
				for _, user := range users {
					if user.Id() != me {
						others = append(others, user.Id())
					}
				}
				h.setRoomSize(roomID, len(others))
				if len(others) > 0 {
					_ = h.srv.In(currentRoom).Emit("room-user-change", others)
				}
			})
		}
	})

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	socket.On("disconnect", func(datas ...any) {
		socket.RemoveAllListeners("")
		socket.Disconnect(true)
	})
}

func handleBroadcast(socket *socketio.Socket, datas []any, volatile bool) {
	roomID, payload, metadata, ack := parseBroadcastArgs(datas)
	if roomID == "" {
		err := fmt.Errorf("missing room id")
		respondWithAck(socket, ack, "broadcast-ack", makeBroadcastAckPayload(payload, err), err)
		return
	}
	if !joined(socket, socketio.Room(roomID)) {
		err := fmt.Errorf("not in room %s", roomID)
		respondWithAck(socket, ack, "broadcast-ack", makeBroadcastAckPayload(payload, err), err)
		return
	}

	var err error
	if volatile {
		err = socket.Volatile().Broadcast().To(socketio.Room(roomID)).Emit("client-broadcast", payload, metadata)
	} else {
		err = socket.Broadcast().To(socketio.Room(roomID)).Emit("client-broadcast", payload, metadata)
	}
	respondWithAck(socket, ack, "broadcast-ack", makeBroadcastAckPayload(payload, err), err)
}

// extractAck splits a trailing acknowledgement callback off the event args.
func extractAck(datas []any) (ackInvoker, []any) {
	if len(datas) == 0 {
		return nil, datas
	}
	ack := wrapAck(datas[len(datas)-1])
	if ack == nil {
		return nil, datas
	}
	return ack, datas[:len(datas)-1]
}

// wrapAck adapts any callback shape to ackInvoker. Single-parameter
// callbacks receive the error, or the payload when there is none.
func wrapAck(candidate any) ackInvoker {
	value := reflect.ValueOf(candidate)
	if !value.IsValid() || value.Kind() != reflect.Func {
		return nil
	}
	typ := value.Type()
	return func(err error, payload map[string]any) {
		args := make([]reflect.Value, typ.NumIn())
		for i := range args {
			var arg any
			switch {
			case typ.NumIn() == 1 && err != nil:
				arg = err
			case typ.NumIn() == 1:
				arg = payload
			case i == 0:
				arg = err
			case i == 1:
				arg = payload
			}
			args[i] = coerceValue(arg, typ.In(i))
		}
		value.Call(args)
	}
}

func coerceValue(value any, target reflect.Type) reflect.Value {
	if value == nil {
		return reflect.Zero(target)
	}
	rv := reflect.ValueOf(value)
	switch {
	case rv.Type().AssignableTo(target):
		return rv
	case rv.Type().ConvertibleTo(target):
		return rv.Convert(target)
	case target.Kind() == reflect.String:
		return reflect.ValueOf(fmt.Sprint(value)).Convert(target)
	}
	return reflect.Zero(target)
}

func respondWithAck(socket *socketio.Socket, ack ackInvoker, event string, payload map[string]any, ackErr error) {
	if ack != nil {
		ack(ackErr, payload)
	}
	if socket != nil && event != "" && payload != nil {
		_ = socket.Emit(event, payload)
	}
}

func errorPayload(err error) map[string]any {
	return map[string]any{"status": "error", "error": err.Error()}
}

func parseBroadcastArgs(datas []any) (roomID string, payload, metadata any, ack ackInvoker) {
	ack, args := extractAck(datas)
	if len(args) < 3 {
		return "", nil, nil, ack
	}
	roomID, _ = args[0].(string)
	return roomID, args[1], args[2], ack
}

func makeBroadcastAckPayload(original any, ackErr error) map[string]any {
	response := map[string]any{"status": "ok"}
	if ackErr != nil {
		response = errorPayload(ackErr)
	}
	if value, ok := original.(map[string]any); ok {
		if id, ok := value["__collabMessageId"].(string); ok && id != "" {
			response["messageId"] = id
		}
	}
	return response
}
