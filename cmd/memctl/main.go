// Command memctl exercises the memkit allocators from the command line.
package main

func main() {
	execute()
}
