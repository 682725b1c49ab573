package smtp

// Reply codes the client waits for (RFC 5321 §4.2).
const (
	ReplyServiceReady   = 220
	ReplyServiceClosing = 221
	ReplyOK             = 250
	ReplyStartMailInput = 354
	ReplyMailboxUnavail = 550
)

type Command struct {
	Name      string
	Prefix    string
	Structure string
}

var (
	CmdHelo = Command{
		Name:      "HELO",
		Prefix:    "HELO ",
		Structure: "HELO %s",
	}

	CmdEhlo = Command{
		Name:      "EHLO",
		Prefix:    "EHLO ",
		Structure: "EHLO %s",
	}

	CmdMailFrom = Command{
		Name:      "MAIL FROM",
		Prefix:    "MAIL FROM:",
		Structure: "MAIL FROM: <%s>",
	}

	CmdRcptTo = Command{
		Name:      "RCPT TO",
		Prefix:    "RCPT TO:",
		Structure: "RCPT TO: <%s>",
	}

	CmdData = Command{
		Name:      "DATA",
		Prefix:    "DATA",
		Structure: "DATA",
	}

	CmdRset = Command{
		Name:      "RSET",
		Prefix:    "RSET",
		Structure: "RSET",
	}

	CmdNoop = Command{
		Name:      "NOOP",
		Prefix:    "NOOP",
		Structure: "NOOP",
	}

	CmdQuit = Command{
		Name:      "QUIT",
		Prefix:    "QUIT",
		Structure: "QUIT",
	}

	// the line that ends the DATA payload
	CmdEndOfData = Command{
		Name:      "end of data",
		Prefix:    ".",
		Structure: ".",
	}
)
