package relay

const (
	StatusServiceReady = "220 %s SMTP service ready" // server hostname
	StatusConnClosed   = "221 %s closing connection" // server hostname
	StatusOK           = "250 OK"
	StatusGreeting     = "250 %s greets %s"     // server hostname, client hostname
	StatusEhloGreeting = "250-%s greets %s"     // server hostname, client hostname
	StatusEhloSize     = "250 SIZE %d"          // maximum message size in bytes
	StatusQueued       = "250 OK: queued as %s" // queue id

	StatusStartMailInput = "354 Start mail input; end with <CRLF>.<CRLF>"

	StatusLocalError        = "451 Requested action aborted: local error in processing"
	StatusTooManyRecipients = "452 Too many recipients"

	StatusBadCommand      = "500 Unrecognized command"
	StatusLineTooLong     = "500 Line too long" // line exceeds maximum length
	StatusSyntaxError     = "501 Syntax error in parameters or arguments"
	StatusBadSequence     = "503 Bad sequence: '%s' required first" // required command
	StatusNoSuchUser      = "550 No such user here"
	StatusMessageTooLarge = "552 Message exceeds fixed maximum message size of %s" // human readable size
)
