package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"

	"justintune/models"
	"justintune/session"
	"justintune/utils"

	socketio "github.com/googollee/go-socket.io"
	"github.com/mdobak/go-xerrors"
)

type socketController struct {
	manager *session.Manager
}

func newSocketController(manager *session.Manager) *socketController {
	return &socketController{manager: manager}
}

func emitterFor(socket socketio.Conn) session.Emitter {
	return func(event string, payload interface{}) {
		socket.Emit(event, payload)
	}
}

func (c *socketController) handleConnect(socket socketio.Conn) {
	ctrl := c.manager.Connect(socket.ID(), emitterFor(socket))
	socket.Emit("system_status", ctrl.Status())
}

// controllerFor resolves the session for a socket, binding one if the
// connect hook somehow never ran.
func (c *socketController) controllerFor(socket socketio.Conn) *session.Controller {
	if ctrl, ok := c.manager.Get(socket.ID()); ok {
		return ctrl
	}
	return c.manager.Connect(socket.ID(), emitterFor(socket))
}

func (c *socketController) handleMIDINote(socket socketio.Conn, payload string) {
	logger := utils.GetLogger()
	ctx := context.Background()

	if payload == "" {
		socket.Emit("error", map[string]string{"message": "no note data received"})
		return
	}

	var note models.PerformedNote
	if err := json.Unmarshal([]byte(payload), &note); err != nil {
		err := xerrors.New(err)
		logger.ErrorContext(ctx, "failed to parse note payload", slog.Any("error", err))
		socket.Emit("error", map[string]string{"message": "invalid note payload"})
		return
	}
	if err := note.Validate(); err != nil {
		logger.ErrorContext(ctx, "rejected note", slog.Any("error", err))
		socket.Emit("error", map[string]string{"message": err.Error()})
		return
	}

	c.controllerFor(socket).HandleNote(note)
}

func (c *socketController) handleReset(socket socketio.Conn) {
	c.controllerFor(socket).Reset()
}

func (c *socketController) handleStatus(socket socketio.Conn) {
	socket.Emit("system_status", c.controllerFor(socket).Status())
}

func (c *socketController) handleDisconnect(socket socketio.Conn) {
	log.Printf("parking session for %s\n", socket.ID())
	c.manager.Disconnect(socket.ID())
}
