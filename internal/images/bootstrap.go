package images

// bootstrapScript is the in-container entrypoint baked into the base
// runtime image. It is the one legitimately non-Go artifact in this
// repository: the runtime container contract is defined against whatever
// language the user's function is written in, and here that's Python, so
// the bootstrap stays in the interpreter's own language rather than being
// reimplemented as a second Go binary cross-compiled into the image.
const bootstrapScript = `#!/usr/bin/env python3
import inspect
import json
import os
import sys
import traceback


def main():
    raw_input = os.environ.get("INPUT_JSON", "null")
    try:
        decoded = json.loads(raw_input)
    except ValueError as exc:
        _fail(f"INPUT_JSON is not valid JSON: {exc}")
        return

    sys.path.insert(0, "/app")
    try:
        import function as user_module
    except Exception:
        _fail_exc()
        return

    handler = getattr(user_module, "handler", None)
    if handler is None or not callable(handler):
        _fail("function.py does not define a callable 'handler'")
        return

    try:
        arity = len(inspect.signature(handler).parameters)
    except (TypeError, ValueError):
        arity = 1

    context = {
        "function_id": os.environ.get("CLOWDY_FUNCTION_ID", ""),
        "invocation_id": os.environ.get("CLOWDY_INVOCATION_ID", ""),
    }

    try:
        if arity >= 2:
            result = handler(decoded, context)
        else:
            result = handler(decoded)
    except Exception:
        _fail_exc()
        return

    print(json.dumps(result))


def _fail(message):
    print(json.dumps({"error": message, "traceback": ""}), file=sys.stderr)
    sys.exit(1)


def _fail_exc():
    print(json.dumps({"error": str(sys.exc_info()[1]), "traceback": traceback.format_exc()}), file=sys.stderr)
    sys.exit(1)


if __name__ == "__main__":
    main()
`

// baseDockerfile builds the shared base runtime image that every
// per-project image extends. It installs nothing project-specific; C2
// layers a project's dependency manifest on top of this in a second build.
const baseDockerfile = `FROM python:3.11-slim
RUN mkdir -p /app
COPY bootstrap.py /bootstrap.py
ENTRYPOINT ["python3", "/bootstrap.py"]
`

// projectDockerfile extends baseImage with a project's pinned dependencies.
func projectDockerfile(baseImage string) string {
	return "FROM " + baseImage + "\n" +
		"COPY requirements.txt /tmp/requirements.txt\n" +
		"RUN pip install --no-cache-dir -r /tmp/requirements.txt\n"
}

// BootstrapScript exposes the embedded bootstrap program, primarily so
// tests can assert on its contract without duplicating it.
func BootstrapScript() string { return bootstrapScript }
