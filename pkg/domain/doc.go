// Package domain contains the core types shared by the capture pipeline and
// its callers. They carry no infrastructure concerns so the HTTP handler, the
// CLI and the pipeline can exchange them freely.
package domain
