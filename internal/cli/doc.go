// Package cli provides the interactive fintrack command-line front end.
//
// App wires the identity, ledger, category and budget services to a simple
// read-eval-print loop. On start it restores the cached session, if any,
// then reads commands until EOF or "exit".
//
// Commands:
//
//	help                       show available commands
//	register                   create an account
//	login | logout | whoami    session handling
//	passwd                     change the password
//	categories [income|expense]
//	add                        record a transaction (interactive)
//	list [n]                   most recent n transactions
//	show <id> | delete <id>
//	summary [day|week|month|year]
//	budget                     create a budget (interactive)
//	budgets                    list budgets with their tracking
//	exit | quit
package cli
