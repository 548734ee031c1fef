package http

import (
	"github.com/go-smart-notifications/internal/application/notification"
	"github.com/go-smart-notifications/internal/application/rollout"
	"github.com/go-smart-notifications/internal/transport/http/handler"
	"github.com/go-smart-notifications/internal/transport/http/middleware"
)

// Deps holds the application services the router exposes.
type Deps struct {
	Inbox     notification.Service
	Generator notification.GenerationService
	Flags     rollout.Service
	Verifier  middleware.TokenVerifier
	Checks    map[string]handler.Check
}
