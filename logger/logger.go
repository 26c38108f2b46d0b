package logger

import (
	"log"
	"os"
)

// New returns a logger writing to the file at path, or to stderr if
// the path is empty. Stderr, not stdout: the console bridge may hold
// the terminal in raw mode and stdout belongs to the guest.
func New(path string) *log.Logger {
	if len(path) == 0 {
		return log.New(os.Stderr, "rvemu ", log.Ldate|log.Ltime)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0666)
	if err != nil {
		log.Fatal(err)
	}
	l := log.New(f, "rvemu ", log.Ldate|log.Ltime|log.Lshortfile)
	return l
}
