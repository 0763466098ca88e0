package spec

import (
	"strings"
	"testing"
)

const sampleWorkflow = `
name: deploy
parameters: [image, replicas]
tasks:
  build:
    action: std.echo
    parameters:
      output: $.image
    on-success: [release]
    policies:
      wait-before: 2
      retry:
        count: 3
  release:
    workflow: release_flow
    requires: build
`

func TestParseWorkflow(t *testing.T) {
	wf, err := ParseWorkflow([]byte(sampleWorkflow))
	if err != nil {
		t.Fatalf("ParseWorkflow() err=%v", err)
	}
	if wf.Name != "deploy" || wf.Type != WorkflowTypeDirect {
		t.Fatalf("unexpected workflow header %+v", wf)
	}
	if !wf.HasParameter("image") || wf.HasParameter("missing") {
		t.Fatalf("unexpected parameters %v", wf.Parameters)
	}
	names := wf.TaskNames()
	if strings.Join(names, ",") != "build,release" {
		t.Fatalf("TaskNames()=%v", names)
	}

	build, ok := wf.Task("build")
	if !ok {
		t.Fatalf("expected build task")
	}
	if build.Name != "build" || build.Action != "std.echo" {
		t.Fatalf("unexpected build task %+v", build)
	}
	if len(build.Policies) != 2 {
		t.Fatalf("expected two policies, got %d", len(build.Policies))
	}
	if build.Policies[0].Type != "wait-before" || build.Policies[1].Type != "retry" {
		t.Fatalf("expected declaration order, got %+v", build.Policies)
	}
	if v, ok := build.Policies[0].Option("delay"); !ok || v != 2 {
		t.Fatalf("expected scalar policy value 2, got %v", v)
	}
	if v, _ := build.Policies[1].Option("count"); v != 3 {
		t.Fatalf("expected retry count 3, got %v", v)
	}
	if got := build.Transitions(); len(got) != 1 || got[0] != "release" {
		t.Fatalf("Transitions()=%v", got)
	}

	release, _ := wf.Task("release")
	if release.Workflow != "release_flow" || len(release.Requires) != 1 || release.Requires[0] != "build" {
		t.Fatalf("unexpected release task %+v", release)
	}
}

func TestParseWorkflowRejectsAmbiguousTask(t *testing.T) {
	_, err := ParseWorkflow([]byte(`
name: bad
tasks:
  both:
    action: std.echo
    workflow: other
`))
	if err == nil {
		t.Fatalf("expected validation error")
	}
	_, err = ParseWorkflow([]byte(`
name: bad
tasks:
  neither: {}
`))
	if err == nil {
		t.Fatalf("expected validation error for task without action or workflow")
	}
}

func TestTaskSnapshotRoundTrip(t *testing.T) {
	wf, err := ParseWorkflow([]byte(sampleWorkflow))
	if err != nil {
		t.Fatalf("ParseWorkflow() err=%v", err)
	}
	build, _ := wf.Task("build")
	raw, err := build.Marshal()
	if err != nil {
		t.Fatalf("Marshal() err=%v", err)
	}
	parsed, err := ParseTask(raw)
	if err != nil {
		t.Fatalf("ParseTask() err=%v", err)
	}
	if parsed.Name != "build" || parsed.Action != "std.echo" {
		t.Fatalf("unexpected snapshot %+v", parsed)
	}
	if len(parsed.Policies) != 2 {
		t.Fatalf("expected policies preserved, got %+v", parsed.Policies)
	}
	if v, ok := parsed.Policies[0].Option("delay"); !ok || v != 2 {
		t.Fatalf("expected wait-before value preserved, got %v", v)
	}
}

func TestParseActionBaseParameters(t *testing.T) {
	declared, err := ParseAction([]byte(`
name: greet
base: std.echo
base-parameters:
  output: $.name
`))
	if err != nil {
		t.Fatalf("ParseAction() err=%v", err)
	}
	params, ok := declared.BaseParameters()
	if !ok || params["output"] != "$.name" {
		t.Fatalf("unexpected base parameters %v (declared=%v)", params, ok)
	}

	empty, err := ParseAction([]byte("name: noop\nbase: std.noop\nbase-parameters: {}\n"))
	if err != nil {
		t.Fatalf("ParseAction() err=%v", err)
	}
	if params, ok := empty.BaseParameters(); !ok || len(params) != 0 {
		t.Fatalf("expected declared empty mapping, got %v (declared=%v)", params, ok)
	}

	absent, err := ParseAction([]byte("name: noop\nbase: std.noop\n"))
	if err != nil {
		t.Fatalf("ParseAction() err=%v", err)
	}
	if _, ok := absent.BaseParameters(); ok {
		t.Fatalf("expected base parameters to be undeclared")
	}
}

func TestParseActionRequiresBase(t *testing.T) {
	if _, err := ParseAction([]byte("name: orphan\n")); err == nil {
		t.Fatalf("expected missing base error")
	}
}

func TestParseWorkflowStringifiesNumericKeys(t *testing.T) {
	wf, err := ParseWorkflow([]byte(`
name: ports
tasks:
  expose:
    action: std.echo
    parameters:
      ports:
        80: http
        443: https
      routes:
        - 1: first
`))
	if err != nil {
		t.Fatalf("ParseWorkflow() err=%v", err)
	}
	task := wf.Tasks["expose"]
	ports, ok := task.Parameters["ports"].(map[string]any)
	if !ok || ports["80"] != "http" || ports["443"] != "https" {
		t.Fatalf("expected string keyed ports, got %#v", task.Parameters["ports"])
	}
	routes := task.Parameters["routes"].([]any)
	if route, ok := routes[0].(map[string]any); !ok || route["1"] != "first" {
		t.Fatalf("expected string keyed route, got %#v", routes[0])
	}

	snapshot, err := task.Marshal()
	if err != nil {
		t.Fatalf("Marshal() err=%v", err)
	}
	restored, err := ParseTask(snapshot)
	if err != nil {
		t.Fatalf("ParseTask() err=%v", err)
	}
	if restored.Parameters["ports"].(map[string]any)["443"] != "https" {
		t.Fatalf("unexpected restored parameters %#v", restored.Parameters)
	}
}

func TestParseWorkflowRejectsNullKeys(t *testing.T) {
	_, err := ParseWorkflow([]byte(`
name: bad
tasks:
  t:
    action: std.echo
    parameters:
      nested:
        ~: value
`))
	if err == nil || !strings.Contains(err.Error(), `task "t" parameters`) {
		t.Fatalf("expected parameters error, got %v", err)
	}
}
