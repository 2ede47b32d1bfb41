package sqlinline

const QInsertAnalysis = `--sql 3cac6bed-2c7e-41df-8c8a-fdd065ec903b
insert into analyses(
  fingerprint,
  critique,
  exif_context,
  created_at
) values (
  $1::text,
  $2::jsonb,
  $3::jsonb,
  now()
)
on conflict (fingerprint) do nothing;
`

const QSelectAnalysisByFingerprint = `--sql 135f6a66-6234-4207-8686-8d58de7d254d
select fingerprint, critique, exif_context, created_at
from analyses
where fingerprint = $1::text
limit 1;
`

const QSelectRecentAnalyses = `--sql 6ba8e1b2-1db7-4f36-b124-ff92c3822230
select fingerprint, critique, exif_context, created_at
from analyses
order by created_at desc
limit $1::int;
`
