package classfilter

// BuiltinDeny contains the class patterns that are always rejected.
// Operator allow or negation entries never reach these; only the global
// class kill-switch disables them.
var BuiltinDeny = []string{
	// reflective proxies
	"reflect.Proxy",
	"java.lang.reflect.Proxy",
	"proxy.",
	"remoting.proxy.",
	// RMI and activation
	"rmi.",
	"java.rmi.",
	"sun.rmi.",
	"activation.",
	"java.rmi.activation.",
	"remoting.rmi.",
	// script engine binding containers
	"script.Bindings",
	"script.SimpleBindings",
	"javax.script.",
	"remoting.script.",
}

// DefaultDangerous contains families denied by the default policy.
// Unlike BuiltinDeny these can be admitted by operator allow entries.
var DefaultDangerous = []string{
	"os/exec.",
	"exec.",
	"plugin.",
	"unsafe.",
	"reflect.",
	"syscall.",
	"net/rpc.",
	"javax.management.",
	"org.apache.commons.collections.functors.",
	"org.apache.commons.collections4.functors.",
	"org.codehaus.groovy.runtime.",
	"com.sun.org.apache.xalan.internal.xsltc.trax.",
	"com.sun.jndi.",
	"javax.naming.",
}
