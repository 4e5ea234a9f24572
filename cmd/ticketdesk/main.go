package main

import "github.com/xueqianLu/ticketdesk/cmd/ticketdesk/cmd"

func main() {
	cmd.Execute()
}
