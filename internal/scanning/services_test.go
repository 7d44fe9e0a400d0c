package scanning

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServiceName(t *testing.T) {
	tests := []struct {
		port uint16
		want string
	}{
		{20, "FTP"},
		{21, "FTP"},
		{22, "SSH"},
		{23, "Telnet"},
		{25, "SMTP"},
		{53, "DNS"},
		{80, "HTTP"},
		{110, "POP3"},
		{143, "IMAP"},
		{443, "HTTPS"},
		{3306, "MySQL"},
		{5432, "PostgreSQL"},
		{6379, "Redis"},
		{8080, "HTTP-ALT"},
		{1, UnknownService},
		{8081, UnknownService},
		{65535, UnknownService},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, ServiceName(tt.port))
		})
	}
}

func TestServiceName_Deterministic(t *testing.T) {
	for port := uint16(1); port < 1024; port++ {
		assert.Equal(t, ServiceName(port), ServiceName(port))
	}
}
