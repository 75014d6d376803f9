package bot

func (b *Bot) routes() {
	user := []middleware{b.withSession}
	authed := []middleware{b.withSession, b.requireToken}
	admin := []middleware{b.requireAdmin, b.withSession}

	b.handle(chain(b.handleStart, user...), "start")
	b.handle(chain(b.handleTokenPrompt, user...), "token")
	b.handle(chain(b.handleSchedule, authed...), "schedule", btnSchedule)
	b.handle(chain(b.handleMarks, authed...), "marks", btnMarks)
	b.handle(chain(b.handleHomework, authed...), "homework", btnHomework)
	b.handle(chain(b.handleCalendar, authed...), "ics", btnCalendar)
	b.handle(chain(b.handleScheduleCalendar, authed...), "timetable")
	b.handle(chain(b.handleSettings, user...), "settings", btnSettings)
	b.handle(chain(b.handleBack, user...), btnBack, btnMainMenu)
	b.handle(chain(b.handleDelete, user...), btnDeleteUser)
	for label := range toggles {
		b.handle(chain(b.handleToggle, user...), label)
	}

	b.handle(chain(b.handleUsers, admin...), "users")
	b.handle(chain(b.handleDebugCommands, admin...), btnDebugCommands)
	b.handle(chain(b.handleDebugUser, admin...), btnDebugUser)
	b.handle(chain(b.handleDebugOff, admin...), btnDebugOff)

	b.tokenIn = chain(b.handleTokenInput, user...)
	b.debugOn = chain(b.handleDebugOn, admin...)
	b.unknown = chain(b.handleUnknown, user...)
}

// handle registers h for slash commands (plain names) and button labels.
func (b *Bot) handle(h handlerFunc, keys ...string) {
	for _, key := range keys {
		if isCommandName(key) {
			b.commands[key] = h
		} else {
			b.texts[key] = h
		}
	}
}

func isCommandName(s string) bool {
	for _, r := range s {
		if !(r >= 'a' && r <= 'z') {
			return false
		}
	}
	return s != ""
}
