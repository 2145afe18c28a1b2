// Package amqp implements the core of an AMQP 1.0 connection driver: a
// buffer-oriented, transport-agnostic engine that advances a connection
// through SASL negotiation and hands off to an AMQP layer beneath it.
//
// The driver performs no I/O of its own. A host owns the socket and event
// loop, feeding bytes in through ReadBuffer/ReadDone, pulling bytes out
// through WriteBuffer/WriteDone, and draining events through Dispatch,
// until the driver reports it is no longer live.
package amqp
