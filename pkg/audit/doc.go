// Package audit records security-relevant back-office events: logins,
// logouts, session expiry, page denials and changes to a user's permission
// or fund access trees.
//
// Events flow through a Recorder, which stamps request context and hands
// them to a Logger sink:
//
//	db, dialect, err := audit.Open("postgres", dsn)
//	sink, err := audit.NewDBLogger(db, dialect)
//	rec := audit.NewRecorder(audit.NewMultiLogger(sink, audit.NewLogSink(logger)), metrics, logger)
//	rec.LogAuthentication(ctx, audit.EventTypeLogin, &user.ID, user.Email, audit.EventStatusSuccess, "login")
//
// DBLogger also answers searches and prunes rows older than the retention
// window; RetentionScheduler runs that prune on a cron schedule.
package audit
