package commands

import (
	stderrors "errors"
	"fmt"
	"io"

	"github.com/agentfs/agentfs/pkg/errors"
)

// PrintError writes err for a terminal user: the message, the underlying
// cause when there is one, then the recommendation for its code.
func PrintError(w io.Writer, err error) {
	var afsErr *errors.AgentFSError
	if !stderrors.As(err, &afsErr) {
		fmt.Fprintf(w, "Error: %v\n", err)
		return
	}

	fmt.Fprintf(w, "Error: %s\n", afsErr.Message)
	if afsErr.Cause != nil {
		fmt.Fprintf(w, "Cause: %v\n", afsErr.Cause)
	}
	if rec := afsErr.GetRecommendation(); rec != "" {
		fmt.Fprintf(w, "\n%s\n", rec)
	}
}
