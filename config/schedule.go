package config

import (
	"os"
	"strings"
	"time"
)

// Defaults: fire at 04:00 daily, abandon a run after 30 minutes.
const (
	DefaultMaterializeSchedule   = "0 4 * * *"
	defaultRunTimeoutSeconds     = 1800
	EnvMaterializeSchedule       = "MATERIALIZE_SCHEDULE"
	envMaterializeRunTimeoutSecs = "MATERIALIZE_RUN_TIMEOUT_SECONDS"
)

// MaterializeSchedule returns the cron expression for the daily
// materialization trigger. Validation happens at scheduler registration;
// a bad expression is fatal at startup.
func MaterializeSchedule() string {
	v := strings.TrimSpace(os.Getenv(EnvMaterializeSchedule))
	if v == "" {
		return DefaultMaterializeSchedule
	}
	return v
}

// MaterializeScheduleDisabled reports whether the recurring trigger is
// switched off (MATERIALIZE_SCHEDULE=off). Manual runs still work.
func MaterializeScheduleDisabled() bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv(EnvMaterializeSchedule)), "off")
}

// MaterializeRunTimeout bounds one run; a run over the limit is abandoned
// cleanly between standing orders. Partial runs are safe to re-run.
func MaterializeRunTimeout() time.Duration {
	secs := intFromEnv(envMaterializeRunTimeoutSecs, defaultRunTimeoutSeconds)
	if secs <= 0 {
		secs = defaultRunTimeoutSeconds
	}
	return time.Duration(secs) * time.Second
}
