package sqlinline

const QSelectIntegrationToken = `--sql e357f6a3-6b48-440d-84ad-c1fb0e2110cf
select token
from integration_tokens
where provider = $1::text
limit 1;
`

const QUpsertIntegrationToken = `--sql 79804d77-ebb0-4191-adb1-b8f92af13e30
insert into integration_tokens (id, provider, token, created_at, updated_at)
values (gen_random_uuid(), $1::text, $2::text, now(), now())
on conflict (provider) do update set
    token = excluded.token,
    updated_at = now();
`

const QCreateIntegrationTokensTable = `--sql 4be3d8f6-0f69-40b9-83bf-864611a9110c
create table if not exists integration_tokens (
  id uuid primary key,
  provider text not null unique,
  token text not null,
  created_at timestamptz not null default now(),
  updated_at timestamptz not null default now()
);
`
