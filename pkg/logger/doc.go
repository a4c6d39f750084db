// Package logger provides a thin factory around log/slog plus attribute
// helpers for the identifiers that recur across the toolkit (user,
// notification, delivery, subscription).
//
// # Usage
//
//	log := logger.New(
//	    logger.WithProduction("pushkit"),
//	    logger.WithAttr(slog.String("version", version)),
//	)
//	logger.SetAsDefault(log)
//
//	log.Info("delivery sent",
//	    logger.DeliveryID(d.ID),
//	    logger.UserID(notif.UserID),
//	)
//
// The attribute helpers return empty attrs for nil values, so call sites can
// pass optional identifiers unconditionally.
package logger
