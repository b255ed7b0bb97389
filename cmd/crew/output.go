package main

import (
	"fmt"

	"github.com/fatih/color"

	"github.com/crewkit/crew/internal/orchestrator"
)

// eventPrinter renders orchestrator events as plain log lines, for --no-tui
// runs and non-terminal output.
type eventPrinter struct {
	done chan struct{}
}

// newEventPrinter subscribes to the broadcaster and starts printing.
func newEventPrinter(events *orchestrator.Broadcaster) *eventPrinter {
	ch, _ := events.Subscribe()
	p := &eventPrinter{done: make(chan struct{})}
	go p.loop(ch)
	return p
}

func (p *eventPrinter) loop(ch <-chan orchestrator.Event) {
	defer close(p.done)
	for ev := range ch {
		p.print(ev)
	}
}

func (p *eventPrinter) print(ev orchestrator.Event) {
	ts := ev.Timestamp.Format("15:04:05")

	switch ev.Type {
	case orchestrator.EventStepStarted:
		fmt.Printf("%s %s %s\n", ts, color.CyanString("step started"), ev.StepDescription)
	case orchestrator.EventStepCompleted:
		fmt.Printf("%s %s %s\n", ts, color.GreenString("step done   "), ev.StepDescription)
	case orchestrator.EventStepFailed:
		fmt.Printf("%s %s %s: %v\n", ts, color.RedString("step failed "), ev.StepDescription, ev.Err)
	case orchestrator.EventStepSkipped:
		fmt.Printf("%s %s %s (%s)\n", ts, color.YellowString("step skipped"), ev.StepDescription, ev.Message)
	case orchestrator.EventWorkerStarted:
		fmt.Printf("%s %s %s worker %s for %s\n", ts, color.MagentaString("worker up   "), ev.Kind, ev.WorkerID, ev.StepID)
	case orchestrator.EventWorkerCompleted:
		fmt.Printf("%s %s %s worker %s: %s\n", ts, color.MagentaString("worker down "), ev.Kind, ev.WorkerID, ev.State)
	case orchestrator.EventWorkerOutput:
		fmt.Printf("%s [%s] %s\n", ts, ev.WorkerID, ev.Line)
	case orchestrator.EventError:
		fmt.Printf("%s %s %s: %v\n", ts, color.RedString("error       "), ev.Message, ev.Err)
	}
}

// Wait blocks until the subscription has drained after the broadcaster closes.
func (p *eventPrinter) Wait() {
	<-p.done
}
