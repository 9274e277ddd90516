package service

import "context"

type testTxRepos struct {
	documents     DocumentRepositoryInterface
	jobs          ProcessingJobRepositoryInterface
	reports       ReportRepositoryInterface
	conversations ConversationRepositoryInterface
}

func (t *testTxRepos) Documents() DocumentRepositoryInterface {
	return t.documents
}

func (t *testTxRepos) Jobs() ProcessingJobRepositoryInterface {
	return t.jobs
}

func (t *testTxRepos) Reports() ReportRepositoryInterface {
	return t.reports
}

func (t *testTxRepos) Conversations() ConversationRepositoryInterface {
	return t.conversations
}

type testTxRunner struct {
	repos  TxRepositories
	called bool
	err    error
}

func (t *testTxRunner) WithTx(ctx context.Context, fn func(repos TxRepositories) error) error {
	t.called = true
	if t.err != nil {
		return t.err
	}
	return fn(t.repos)
}
