package qsys

// Method names in the Q-SYS QRC JSON-RPC method set (spec §6). The
// adapter package builds params for these; the client only forwards them.
const (
	MethodNoOp = "NoOp"

	MethodComponentGetComponents = "Component.GetComponents"
	MethodComponentGetControls   = "Component.GetControls"
	MethodComponentGet           = "Component.Get"
	MethodComponentSet           = "Component.Set"

	MethodControlGet = "Control.Get"
	MethodControlSet = "Control.Set"

	MethodStatusGet = "StatusGet"

	MethodChangeGroupAddControl          = "ChangeGroup.AddControl"
	MethodChangeGroupAddComponentControl = "ChangeGroup.AddComponentControl"
	MethodChangeGroupRemove              = "ChangeGroup.Remove"
	MethodChangeGroupPoll                = "ChangeGroup.Poll"
	MethodChangeGroupClear               = "ChangeGroup.Clear"
	MethodChangeGroupDestroy             = "ChangeGroup.Destroy"
	MethodChangeGroupInvalidate          = "ChangeGroup.Invalidate"
	MethodChangeGroupAutoPoll            = "ChangeGroup.AutoPoll"

	MethodLoginNoOp = "Logon"
)
