// Package agent provides a bounded tool-calling agent on top of genx.
//
// # Overview
//
// ToolAgent runs the reason and act cycle for one instruction:
//
//	Input → Generate → Tool calls → Tool results → Generate → ... → Text
//
// The cycle ends when the model answers without requesting tools, or when
// MaxTurns tool rounds have been spent. In the latter case the model is asked
// once more, without tools, to answer from what it has gathered.
//
// # Events
//
// Every tool invocation is reported to the Observer passed to Run:
//
//	res, err := a.Run(ctx, "weather in Boston?", func(evt agent.ToolEvent) {
//	    switch evt.Type {
//	    case agent.EventToolStart:
//	        fmt.Println("calling", evt.Tool)
//	    case agent.EventToolError:
//	        fmt.Println("tool failed:", evt.Err)
//	    }
//	})
//
// A failing tool does not abort the run. The error text is handed back to
// the model as the tool result so it can recover.
package agent
