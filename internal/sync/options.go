package sync

// DefaultDownloadableExtensions lists the documented text/notebook
// formats whose content is fetched. Anything else gets a placeholder row
// with a NULL content.
var DefaultDownloadableExtensions = []string{".ipynb", ".py", ".md", ".txt"}

// Options tune a synchronization pass. The zero value means: no repo or
// commit caps, all users, incremental fetch, default extension allow-list.
type Options struct {
	// RepoLimit caps the number of repositories processed; 0 = unlimited.
	RepoLimit int

	// CommitLimit caps new commits fetched per repository, keeping the
	// most recent ones; 0 = unlimited.
	CommitLimit int

	// UserFilter restricts fork processing to these owner logins;
	// empty = all.
	UserFilter []string

	// Reprocess ignores the watermark and the known-sha filter, re-scanning
	// full history.
	Reprocess bool

	// DownloadableExtensions overrides the content-fetch allow-list;
	// empty = DefaultDownloadableExtensions.
	DownloadableExtensions []string
}

func (o Options) downloadableExtensions() []string {
	if len(o.DownloadableExtensions) > 0 {
		return o.DownloadableExtensions
	}
	return DefaultDownloadableExtensions
}
