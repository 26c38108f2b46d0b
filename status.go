package main

import (
	"fmt"

	"github.com/jroimartin/gocui"
)

// status prints one line to the status view. gocui repaints views only
// from Update callbacks, so everything funnels through g.Update here.
func status(g *gocui.Gui, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	g.Update(func(g *gocui.Gui) error {
		v, err := g.View("status")
		if err != nil {
			return err
		}
		fmt.Fprintf(v, "%s\n", msg)
		return nil
	})
}
