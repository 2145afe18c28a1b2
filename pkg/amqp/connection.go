package amqp

// ConnectionState is the coarse lifecycle spec.md §3 calls "a reference to
// a Connection" needs to track. The full AMQP session/link/delivery state
// machine a Connection would otherwise drive is out of scope for this core
// (spec.md §1); this type exists only so the Driver has something concrete
// to own and the client-only "open on connect" step has a target.
type ConnectionState uint8

const (
	ConnectionUninitialized ConnectionState = iota
	ConnectionActive
	ConnectionClosed
)

func (s ConnectionState) String() string {
	switch s {
	case ConnectionActive:
		return "ACTIVE"
	case ConnectionClosed:
		return "CLOSED"
	default:
		return "UNINITIALIZED"
	}
}

// Connection is the driver's reference per spec.md §3 ("a reference to a
// Connection"). Hostname carries the value set by WithRemoteHostname when a
// client Driver is built (Connect, Container.Connect), the SNI-like target
// the client advertises; SASLRemoteHostname does not change it.
type Connection struct {
	State    ConnectionState
	Hostname string
}

func newConnection() *Connection { return &Connection{} }

// Open transitions the connection to active. connect() calls this once
// configure completes ("(client only) open the connection", spec.md §4.1).
func (c *Connection) Open() { c.State = ConnectionActive }

func (c *Connection) Close() { c.State = ConnectionClosed }
