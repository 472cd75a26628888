package core

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"pkt.systems/hostbridge/schema"
)

// Built-in command names.
const (
	MethodCreateObject schema.Method = "create_object"
	MethodGetHierarchy schema.Method = "get_hierarchy"
	MethodDeleteObject schema.Method = "delete_object"
	MethodReadConsole  schema.Method = "read_console"
	MethodListMethods  schema.Method = "list_methods"
)

// legacyMethodNames are the names used by older clients.
var legacyMethodNames = map[schema.Method]schema.Method{
	"CreateObject": MethodCreateObject,
	"GetHierarchy": MethodGetHierarchy,
	"DeleteObject": MethodDeleteObject,
	"ReadConsole":  MethodReadConsole,
}

const consoleTimeLayout = "15:04:05"

// RegisterSceneCommands registers the scene, console and introspection
// commands plus their legacy aliases.
func RegisterSceneCommands(reg *Registry, scene *Scene, console *LogBuffer) error {
	if reg == nil || scene == nil {
		return errors.New("register scene commands: registry and scene are required")
	}
	handlers := []struct {
		method schema.Method
		fn     HandlerFunc
	}{
		{MethodCreateObject, createObject(scene, console)},
		{MethodGetHierarchy, getHierarchy(scene)},
		{MethodDeleteObject, deleteObject(scene, console)},
		{MethodReadConsole, readConsole(console)},
		{MethodListMethods, listMethods(reg)},
	}
	for _, h := range handlers {
		if err := reg.Register(h.method, h.fn); err != nil {
			return err
		}
	}
	for alias, target := range legacyMethodNames {
		if err := reg.RegisterAlias(alias, target); err != nil {
			return err
		}
	}
	return nil
}

func createObject(scene *Scene, console *LogBuffer) HandlerFunc {
	return func(req schema.CommandRequest) schema.CommandResult {
		name, ok := req.Params.String("name")
		if !ok {
			return schema.Fail("Missing required parameter 'name'")
		}
		position, _, err := req.Params.Vector("position")
		if err != nil {
			return schema.FailErr(err)
		}
		parent, _ := req.Params.String("parent")
		if _, err := scene.Create(name, position, parent); err != nil {
			return schema.FailErr(err)
		}
		console.Log(schema.LogInfo, fmt.Sprintf("created object %s", name))
		return schema.Okf("Created '%s' at %s", name, position)
	}
}

func getHierarchy(scene *Scene) HandlerFunc {
	return func(schema.CommandRequest) schema.CommandResult {
		return schema.Ok(scene.Hierarchy())
	}
}

func deleteObject(scene *Scene, console *LogBuffer) HandlerFunc {
	return func(req schema.CommandRequest) schema.CommandResult {
		name, ok := req.Params.String("name")
		if !ok {
			return schema.Fail("Missing required parameter 'name'")
		}
		if !scene.Delete(name) {
			return schema.FailErr(objectNotFound(name))
		}
		console.Log(schema.LogInfo, fmt.Sprintf("deleted object %s", name))
		return schema.Okf("Deleted '%s'.", name)
	}
}

func readConsole(console *LogBuffer) HandlerFunc {
	return func(req schema.CommandRequest) schema.CommandResult {
		entries := console.Snapshot()
		count, hasCount, err := req.Params.Float("count")
		if err != nil {
			return schema.FailErr(err)
		}
		if hasCount {
			if count < 0 || math.IsInf(count, 0) || count != math.Trunc(count) {
				return schema.Fail("parameter 'count' must be a non-negative integer")
			}
			// Zero means no limit.
			if count > 0 && count < float64(len(entries)) {
				entries = entries[len(entries)-int(count):]
			}
		}
		if len(entries) == 0 {
			return schema.Ok("No logs")
		}
		return schema.Ok(FormatConsole(entries))
	}
}

func listMethods(reg *Registry) HandlerFunc {
	return func(schema.CommandRequest) schema.CommandResult {
		methods := reg.Methods()
		names := make([]string, len(methods))
		for i, m := range methods {
			names[i] = string(m)
		}
		return schema.Ok(strings.Join(names, "\n"))
	}
}

// FormatConsole renders entries as "[15:04:05] [level] text" lines, oldest first.
func FormatConsole(entries []schema.LogEntry) string {
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = fmt.Sprintf("[%s] [%s] %s", e.Timestamp.Format(consoleTimeLayout), e.Level, e.Text)
	}
	return strings.Join(lines, "\n")
}
