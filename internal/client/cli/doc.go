// Package cli implements intakectl, the interactive operator console for the
// intake service.
//
// The console reads one command per line:
//
//	submit <form> <role>=<path> ...   upload files; metadata is prompted as name=value lines
//	get <id>                          show one upload
//	list [form=..] [status=..] [centre=..] [limit=..]
//	dashboard [centre]                slot grid; defaults to the operator's uploads
//	reconcile                         trigger a promotion run and print the report
//	respond <name> <Validated|Rejected> [message]
//	health                            probe the server
//	exit | quit
//
// A background watcher pings the server every OnlineCheckInterval and shows
// "online" or "offline" in the prompt.
package cli
