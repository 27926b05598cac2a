package telegram

import (
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// command identifies one entry of the dispatch table. Every inbound message
// resolves to exactly one command (or cmdUnknown) before any handler runs.
type command int

const (
	cmdUnknown command = iota
	cmdStart
	cmdVerify
	cmdStats
	cmdBuyPremium
	cmdHelp
	cmdContact
	cmdDocument
)

// Menu labels must match the reply-keyboard buttons byte for byte.
const (
	menuBuyPremium = "💰 Buy Premium"
	menuHelp       = "📄 Help"
	menuContact    = "📬 Contact Admin"
)

var commandNames = map[string]command{
	"start":  cmdStart,
	"verify": cmdVerify,
	"stats":  cmdStats,
}

var menuLabels = map[string]command{
	menuBuyPremium: cmdBuyPremium,
	menuHelp:       cmdHelp,
	menuContact:    cmdContact,
}

// resolve maps an inbound message onto the command table.
func resolve(msg *tgbotapi.Message) command {
	if msg.Document != nil {
		return cmdDocument
	}
	if msg.IsCommand() {
		if c, ok := commandNames[msg.Command()]; ok {
			return c
		}
		return cmdUnknown
	}
	if c, ok := menuLabels[msg.Text]; ok {
		return c
	}
	return cmdUnknown
}

// adminOnly commands from anyone but the configured administrator are dropped
// without a response, so their existence is not leaked.
func (c command) adminOnly() bool {
	return c == cmdVerify || c == cmdStats
}

// parseVerifyTarget extracts the target user ID from the /verify argument.
func parseVerifyTarget(args string) (int64, error) {
	fields := strings.Fields(args)
	if len(fields) != 1 {
		return 0, fmt.Errorf("expected exactly one argument")
	}
	id, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("user id must be a positive number")
	}
	return id, nil
}
