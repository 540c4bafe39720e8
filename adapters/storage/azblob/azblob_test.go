package azblob

import "testing"

func TestBlobName_NamespacesUnderTasks(t *testing.T) {
	got := blobName("deadbeef")
	want := "tasks/deadbeef.json"
	if got != want {
		t.Errorf("blobName() = %q, want %q", got, want)
	}
}

func TestContainerName_ExtractsTrailingSegment(t *testing.T) {
	got := containerName("https://acct.blob.core.windows.net/evalmesh-tasks")
	want := "evalmesh-tasks"
	if got != want {
		t.Errorf("containerName() = %q, want %q", got, want)
	}
}
