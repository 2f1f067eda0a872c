// Command eventhub runs the event registration service and its database migrations.
package main

func main() {
	Execute()
}
