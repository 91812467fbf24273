package handlers

import (
	"github.com/whisperline/whisperline-backend/internal/services"
)

// Shared service instances, wired once from main before the router starts.
var (
	keyRing    *services.KeyRing
	presence   *services.PresenceRouter
	custody    *services.MessageCustody
	keyRelay   *services.KeyExchangeRelay
	otpService *services.OTPService
)

// InitServices injects the core components into the handlers package.
func InitServices(
	keys *services.KeyRing,
	router *services.PresenceRouter,
	messageCustody *services.MessageCustody,
	relay *services.KeyExchangeRelay,
	otp *services.OTPService,
) {
	keyRing = keys
	presence = router
	custody = messageCustody
	keyRelay = relay
	otpService = otp
}
