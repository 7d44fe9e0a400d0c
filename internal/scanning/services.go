package scanning

// UnknownService is reported for open ports missing from the service table.
const UnknownService = "Unknown"

var wellKnownServices = map[uint16]string{
	20:   "FTP",
	21:   "FTP",
	22:   "SSH",
	23:   "Telnet",
	25:   "SMTP",
	53:   "DNS",
	80:   "HTTP",
	110:  "POP3",
	143:  "IMAP",
	443:  "HTTPS",
	3306: "MySQL",
	5432: "PostgreSQL",
	6379: "Redis",
	8080: "HTTP-ALT",
}

// ServiceName returns the well-known service name for port, or UnknownService.
func ServiceName(port uint16) string {
	if name, ok := wellKnownServices[port]; ok {
		return name
	}
	return UnknownService
}
