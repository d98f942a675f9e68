package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/datatypes"
)

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "1h 24m", FormatDuration(84*time.Minute))
	assert.Equal(t, "45m", FormatDuration(45*time.Minute+10*time.Second))
	assert.Equal(t, "30s", FormatDuration(30*time.Second))
	assert.Equal(t, "0s", FormatDuration(-time.Second))
}

func TestConnectionSanitized(t *testing.T) {
	conn := &Connection{
		ID:   1,
		Name: "Dev",
		Credentials: datatypes.NewJSONType(ConnectionCredentials{
			Username: "admin",
			Password: "secret",
		}),
	}

	out := conn.Sanitized()
	assert.Equal(t, "admin", out.Credentials.Data().Username)
	assert.Empty(t, out.Credentials.Data().Password)
	// 原对象不受影响
	assert.Equal(t, "secret", conn.Credentials.Data().Password)

	var nilConn *Connection
	assert.Nil(t, nilConn.Sanitized())
}

func TestUserIdentity(t *testing.T) {
	u := &User{ID: 7, Username: "demo"}
	id := u.Identity()
	assert.Equal(t, int64(7), id.ID)
	assert.Equal(t, "demo", id.Name)
	assert.Equal(t, "demo@example.com", id.Email)

	email := "demo@corp.io"
	u.Email = &email
	assert.Equal(t, "demo@corp.io", u.Identity().Email)
}

func TestIsValidOS(t *testing.T) {
	assert.True(t, IsValidOS(OSWindows))
	assert.True(t, IsValidOS(OSMacOS))
	assert.False(t, IsValidOS("Solaris"))
}
