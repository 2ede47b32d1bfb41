package sqlinline

const QCreateAnalysesTable = `--sql 789d629b-e98d-4e66-a06b-ee62303cc3b2
create table if not exists analyses (
  fingerprint text primary key,
  critique jsonb not null,
  exif_context jsonb,
  created_at timestamptz not null default now()
);
`

const QCreateAnalysesCreatedAtIndex = `--sql f1d483c5-d584-4fdd-8358-787d529a2f18
create index if not exists idx_analyses_created_at on analyses(created_at desc);
`
