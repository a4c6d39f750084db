// Package push exposes the HTTP surface of the push notification toolkit as
// a mountable chi router: device registration and unregistration, the
// service-worker delivery confirmations, and the VAPID public key endpoint
// browsers need to subscribe.
//
// Authentication stays with the host application: the handler only consumes
// the extracted user id through a UserFromRequest function.
//
//	handler := push.NewHandler(subService, tracker, webpushCfg, userFromSession)
//	r.Mount("/push", handler.Router())
//
// Dispatcher adds the internal notification creation endpoint that stores a
// notification and runs the fan-out. It is meant for service-to-service
// routes and does no end-user authentication:
//
//	dispatcher := push.NewDispatcher(notifStore, engine)
//	r.Mount("/internal", dispatcher.Router())
package push
