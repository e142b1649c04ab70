package profile

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	return s
}

func TestOpenMissingFileSeedsDefaults(t *testing.T) {
	s := tempStore(t)

	assert.Contains(t, s.ProfileNames(), "auto")
	assert.Equal(t, DefaultConnectionConfig(), s.DefaultProfile())
}

func TestProfileRoundTrip(t *testing.T) {
	s := tempStore(t)

	cfg := DefaultConnectionConfig()
	cfg.Port = "/dev/rfcomm0"
	cfg.Protocol = "iso_9141_2"
	cfg.AutoDetect = false
	require.NoError(t, s.SaveProfile("garage", cfg))
	require.NoError(t, s.SetDefaultProfile("garage"))
	require.NoError(t, s.Save())

	reopened, err := Open(s.Path())
	require.NoError(t, err)

	got, err := reopened.Profile("garage")
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
	assert.Equal(t, cfg, reopened.DefaultProfile())
}

func TestSaveProfileValidates(t *testing.T) {
	s := tempStore(t)

	bad := DefaultConnectionConfig()
	bad.BaudRate = 0
	assert.Error(t, s.SaveProfile("broken", bad))
}

func TestDeleteProfile(t *testing.T) {
	s := tempStore(t)

	require.NoError(t, s.SaveProfile("garage", DefaultConnectionConfig()))
	require.NoError(t, s.SetDefaultProfile("garage"))
	require.NoError(t, s.DeleteProfile("garage"))

	// Default pointer falls back to the undeletable auto profile.
	assert.Equal(t, DefaultConnectionConfig(), s.DefaultProfile())
	assert.Error(t, s.DeleteProfile("auto"))
	assert.Error(t, s.DeleteProfile("never-existed"))
}

func TestRecordConnectionPersists(t *testing.T) {
	s := tempStore(t)
	s.RecordConnection("/dev/ttyUSB0", "can_11_500", 38400)

	reopened, err := Open(s.Path())
	require.NoError(t, err)
	last := reopened.LastSuccessful()
	require.NotNil(t, last)
	assert.Equal(t, "/dev/ttyUSB0", last.Port)
	assert.Equal(t, "can_11_500", last.Protocol)
	assert.Equal(t, 38400, last.BaudRate)
}

func TestRecordSessionTrimsHistory(t *testing.T) {
	s := tempStore(t)

	started := time.Now().Add(-time.Hour)
	for i := 0; i < maxSessions+5; i++ {
		s.RecordSession(SessionRecord{
			Started:  started,
			Ended:    started.Add(time.Minute),
			Port:     "/dev/ttyUSB0",
			Protocol: "can_11_500",
			DTCCount: i,
		})
	}

	sessions := s.Sessions()
	require.Len(t, sessions, maxSessions)
	// Oldest entries were dropped, newest kept.
	assert.Equal(t, maxSessions+4, sessions[len(sessions)-1].DTCCount)
	assert.Equal(t, 5, sessions[0].DTCCount)
}
