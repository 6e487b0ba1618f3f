// internal/browser/cdp/script.go
package cdp

// snapshotJS walks the document and returns every element as a locator.Node. The
// live elements are kept on window.__uiverify under the snapshot generation so later
// calls can address them by index.
const snapshotJS = `(function(selectors, gen) {
  const skip = new Set(['SCRIPT', 'STYLE', 'NOSCRIPT', 'TEMPLATE', 'HEAD', 'META', 'LINK', 'TITLE']);
  const textRoles = new Set(['button', 'link', 'heading', 'listitem', 'tab', 'cell', 'columnheader',
    'option', 'menuitem', 'treeitem', 'row', 'status', 'alert', 'tooltip', 'checkbox', 'radio']);
  const norm = (s) => (s || '').replace(/\s+/g, ' ').trim();
  const byIds = (ids) => norm((ids || '').split(/\s+/).map((id) => {
    const el = id && document.getElementById(id);
    return el ? el.textContent : '';
  }).join(' '));

  const implicitRole = (el) => {
    const tag = el.tagName.toLowerCase();
    switch (tag) {
      case 'a': return el.hasAttribute('href') ? 'link' : '';
      case 'button': return 'button';
      case 'select': return el.multiple ? 'listbox' : 'combobox';
      case 'textarea': return 'textbox';
      case 'h1': case 'h2': case 'h3': case 'h4': case 'h5': case 'h6': return 'heading';
      case 'ul': case 'ol': return 'list';
      case 'li': return 'listitem';
      case 'nav': return 'navigation';
      case 'main': return 'main';
      case 'form': return 'form';
      case 'table': return 'table';
      case 'tr': return 'row';
      case 'td': return 'cell';
      case 'th': return 'columnheader';
      case 'img': return 'img';
      case 'dialog': return 'dialog';
      case 'progress': return 'progressbar';
      case 'header': return 'banner';
      case 'footer': return 'contentinfo';
      case 'aside': return 'complementary';
      case 'option': return 'option';
      case 'section': return (el.hasAttribute('aria-label') || el.hasAttribute('aria-labelledby')) ? 'region' : '';
      case 'input': {
        const type = (el.getAttribute('type') || 'text').toLowerCase();
        if (['button', 'submit', 'reset', 'image'].includes(type)) return 'button';
        if (type === 'checkbox') return 'checkbox';
        if (type === 'radio') return 'radio';
        if (type === 'range') return 'slider';
        if (type === 'hidden') return '';
        return 'textbox';
      }
    }
    return '';
  };

  const labelsOf = (el) => {
    const out = [];
    if (el.labels) {
      for (const l of el.labels) out.push(norm(l.textContent));
    }
    if (el.hasAttribute('aria-label')) out.push(norm(el.getAttribute('aria-label')));
    if (el.hasAttribute('aria-labelledby')) out.push(byIds(el.getAttribute('aria-labelledby')));
    return out.filter((s) => s !== '');
  };

  const nameOf = (el, role, labels) => {
    if (el.hasAttribute('aria-labelledby')) {
      const n = byIds(el.getAttribute('aria-labelledby'));
      if (n) return n;
    }
    if (el.hasAttribute('aria-label')) return norm(el.getAttribute('aria-label'));
    if (labels.length > 0) return labels[0];
    if (el.tagName === 'INPUT' && ['button', 'submit', 'reset'].includes((el.type || '').toLowerCase())) {
      return norm(el.value);
    }
    if (el.hasAttribute('alt')) return norm(el.getAttribute('alt'));
    if (textRoles.has(role)) {
      const t = norm(el.textContent);
      if (t) return t;
    }
    if (el.hasAttribute('title')) return norm(el.getAttribute('title'));
    return norm(el.getAttribute('placeholder'));
  };

  const visible = (el) => {
    if (typeof el.checkVisibility === 'function' &&
        !el.checkVisibility({ opacityProperty: true, visibilityProperty: true })) {
      return false;
    }
    const style = getComputedStyle(el);
    if (style.visibility === 'hidden' || style.display === 'none') return false;
    const r = el.getBoundingClientRect();
    return r.width > 0 && r.height > 0;
  };

  const hit = (el) => {
    const r = el.getBoundingClientRect();
    const x = r.left + r.width / 2;
    const y = r.top + r.height / 2;
    if (x < 0 || y < 0 || x >= innerWidth || y >= innerHeight) {
      return true;
    }
    const top = document.elementFromPoint(x, y);
    return !!top && (top === el || el.contains(top));
  };

  const editable = (el) => {
    if (el.isContentEditable) return true;
    if (el.disabled || el.readOnly) return false;
    if (el.tagName === 'TEXTAREA' || el.tagName === 'SELECT') return true;
    if (el.tagName !== 'INPUT') return false;
    const type = (el.getAttribute('type') || 'text').toLowerCase();
    return !['button', 'submit', 'reset', 'image', 'checkbox', 'radio', 'hidden', 'file', 'range', 'color'].includes(type);
  };

  const els = [];
  const index = new Map();
  const nodes = [];
  const walk = (el, parent) => {
    if (skip.has(el.tagName)) return;
    const i = els.length;
    els.push(el);
    index.set(el, i);

    const role = (el.getAttribute('role') || implicitRole(el)).toLowerCase().split(/\s+/)[0];
    const labels = labelsOf(el);
    const vis = visible(el);
    const attrs = {};
    for (const a of el.attributes) attrs[a.name] = a.value;
    const matched = [];
    selectors.forEach((s, si) => {
      try { if (el.matches(s)) matched.push(si); } catch (e) {}
    });
    nodes.push({
      index: i,
      parent: parent,
      tag: el.tagName.toLowerCase(),
      role: role,
      name: nameOf(el, role, labels),
      labels: labels,
      placeholder: el.getAttribute('placeholder') || '',
      text: vis ? norm(el.innerText) : '',
      value: ('value' in el && typeof el.value === 'string') ? el.value : '',
      attrs: attrs,
      matched: matched,
      hidden: !!el.closest('[aria-hidden="true"]') || getComputedStyle(el).display === 'none',
      visible: vis,
      enabled: !el.disabled && el.getAttribute('aria-disabled') !== 'true' && !el.closest('fieldset[disabled]'),
      editable: editable(el),
      hit: vis && hit(el),
    });
    for (const child of el.children) walk(child, i);
  };
  if (document.body) walk(document.body, -1);

  window.__uiverify = { gen: gen, els: els };
  return JSON.stringify({ url: location.href, title: document.title, nodes: nodes });
})`

// elementJS resolves a ref to a live element or reports "stale".
const elementJS = `const s = window.__uiverify;
  if (!s || s.gen !== gen) return 'stale';
  const el = s.els[index];
  if (!el || !el.isConnected) return 'stale';`

// pointJS scrolls the element into view and returns its center.
const pointJS = `(function(gen, index) {
  ` + elementJS + `
  el.scrollIntoView({ block: 'center', inline: 'center' });
  const r = el.getBoundingClientRect();
  return JSON.stringify({ x: r.left + r.width / 2, y: r.top + r.height / 2 });
})`

// fillJS sets the value through the native setter so framework-bound inputs see it.
const fillJS = `(function(gen, index, value) {
  ` + elementJS + `
  if (el.isContentEditable) {
    el.focus();
    el.textContent = value;
    el.dispatchEvent(new InputEvent('input', { bubbles: true }));
    return 'ok';
  }
  const tag = el.tagName;
  if (!(tag === 'INPUT' || tag === 'TEXTAREA' || tag === 'SELECT') || el.readOnly || el.disabled) {
    return 'noteditable';
  }
  el.focus();
  const proto = tag === 'TEXTAREA' ? HTMLTextAreaElement.prototype
    : tag === 'SELECT' ? HTMLSelectElement.prototype : HTMLInputElement.prototype;
  Object.getOwnPropertyDescriptor(proto, 'value').set.call(el, value);
  el.dispatchEvent(new Event('input', { bubbles: true }));
  el.dispatchEvent(new Event('change', { bubbles: true }));
  return 'ok';
})`

// observerJS records the time of the last DOM mutation for settle waits.
const observerJS = `(() => {
  window.__uiverifyMutated = performance.now();
  const start = () => new MutationObserver(() => { window.__uiverifyMutated = performance.now(); })
    .observe(document, { subtree: true, childList: true, attributes: true, characterData: true });
  if (document.documentElement) start(); else document.addEventListener('DOMContentLoaded', start);
})();`

// activityJS reports document readiness and milliseconds since the last mutation.
const activityJS = `JSON.stringify({
  ready: document.readyState,
  quietMs: window.__uiverifyMutated === undefined ? -1 : performance.now() - window.__uiverifyMutated
})`
