// Command kintone reads, writes and mirrors the records of a kintone app.
package main

func main() {
	Execute()
}
