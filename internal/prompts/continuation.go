package prompts

import "fmt"

// workflowContinuationMessage is injected when the host stops while a
// workflow session is active.
const workflowContinuationMessage = `[WORKFLOW CONTINUATION]
An active workflow session is still in progress. Before stopping, check
the workflow's task list: finish the current task, update its status,
and only stop once every task is complete or explicitly deferred.`

// modeContinuationTemplate is injected when the host stops while an
// execution mode is active. The single format verb is the mode name.
const modeContinuationTemplate = `[%s MODE STILL ACTIVE]
The %s mode is still active for this session. Continue working until
its goal is verified complete, or cancel the mode explicitly if the
work is done.`

// WorkflowContinuation returns the fixed workflow-continuation message.
func WorkflowContinuation() string {
	return workflowContinuationMessage
}

// ModeContinuation returns the continuation message for the named mode.
func ModeContinuation(name string) string {
	return fmt.Sprintf(modeContinuationTemplate, upper(name), name)
}
